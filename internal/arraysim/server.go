package arraysim

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Server serves a Simulator over HTTP or HTTPS. With TLS enabled it
// presents a freshly generated self-signed certificate, so clients
// have to skip certificate validation.
type Server struct {
	// CertFile and KeyFile replace the generated self-signed pair.
	// Either both or neither must be set.
	CertFile, KeyFile string

	log     *logrus.Entry
	sim     *Simulator
	withTLS bool
	server  *http.Server
	ln      net.Listener
}

// NewServer returns an unstarted server for sim.
func NewServer(log *logrus.Entry, sim *Simulator, withTLS bool) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{log: log, sim: sim, withTLS: withTLS}
}

// Start binds addr and serves in the background until Shutdown.
func (s *Server) Start(addr string) error {
	if (s.CertFile == "") != (s.KeyFile == "") {
		return errors.New("cert and key files must be given together")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.ln = ln
	s.server = &http.Server{Handler: s.sim}

	scheme := "http"
	if s.withTLS {
		scheme = "https"
		if s.CertFile == "" {
			cert, err := selfSignedCertificate()
			if err != nil {
				ln.Close()
				return err
			}
			s.server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		}
	}

	go func() {
		var serveErr error
		if s.withTLS {
			serveErr = s.server.ServeTLS(ln, s.CertFile, s.KeyFile)
		} else {
			serveErr = s.server.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.WithError(serveErr).Error("array simulator failed")
		}
	}()
	s.log.WithField("address", scheme+"://"+ln.Addr().String()).Info("array simulator up")
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func selfSignedCertificate() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating serial: %w", err)
	}
	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "volstress-arraysim"},
		NotBefore:    now.Add(-1 * time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("creating certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshaling key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	return tls.X509KeyPair(certPEM, keyPEM)
}
