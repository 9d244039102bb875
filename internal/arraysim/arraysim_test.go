package arraysim

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/volstress/volstress/internal/powerflex"
)

func postJSON(t *testing.T, client *http.Client, url string, payload interface{}) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, respBody
}

func getJSON(t *testing.T, client *http.Client, url string) (int, []byte) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, respBody
}

func TestVolumeLifecycle(t *testing.T) {
	sim := New(nil)
	server := httptest.NewServer(sim)
	defer server.Close()
	client := server.Client()

	status, body := postJSON(t, client, server.URL+powerflex.VolumesPath, powerflex.CreateVolumeRequest{
		VolumeSizeInKb: "100",
		StoragePoolID:  StoragePoolID,
		Name:           "vol-a",
	})
	if status != http.StatusOK {
		t.Fatalf("create: got status %d: %s", status, body)
	}
	var created powerflex.Volume
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "vol-a" {
		t.Errorf("got name %q", created.Name)
	}
	if len(created.ID) != 16 {
		t.Errorf("got id %q, want 16 hex characters", created.ID)
	}

	status, body = postJSON(t, client, server.URL+powerflex.QueryIDByKeyPath, powerflex.QueryIDByKeyRequest{Name: "vol-a"})
	if status != http.StatusOK {
		t.Fatalf("queryIdByKey: got status %d: %s", status, body)
	}
	var idResponse struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &idResponse); err != nil {
		t.Fatal(err)
	}
	if idResponse.ID != created.ID {
		t.Errorf("got id %q, want %q", idResponse.ID, created.ID)
	}

	status, body = getJSON(t, client, server.URL+powerflex.VolumePath(created.ID))
	if status != http.StatusOK {
		t.Fatalf("read: got status %d: %s", status, body)
	}
	var read powerflex.Volume
	if err := json.Unmarshal(body, &read); err != nil {
		t.Fatal(err)
	}
	if read.StoragePoolID != StoragePoolID {
		t.Errorf("got storage pool %q", read.StoragePoolID)
	}
	if len(read.MappedSdcIDs) != 0 {
		t.Errorf("fresh volume already mapped: %v", read.MappedSdcIDs)
	}

	status, body = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionAddMappedSdc), powerflex.AddMappedSdcRequest{
		SdcID:                 SdcID,
		AllowMultipleMappings: "false",
	})
	if status != http.StatusOK {
		t.Fatalf("map: got status %d: %s", status, body)
	}
	status, _ = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionAddMappedSdc), powerflex.AddMappedSdcRequest{
		SdcID: SdcID,
	})
	if status != http.StatusInternalServerError {
		t.Errorf("double map: got status %d, want 500", status)
	}

	status, body = getJSON(t, client, server.URL+powerflex.VolumePath(created.ID))
	if status != http.StatusOK {
		t.Fatalf("read mapped: got status %d", status)
	}
	read = powerflex.Volume{}
	if err := json.Unmarshal(body, &read); err != nil {
		t.Fatal(err)
	}
	if len(read.MappedSdcIDs) != 1 || read.MappedSdcIDs[0] != SdcID {
		t.Errorf("got mappings %v, want [%s]", read.MappedSdcIDs, SdcID)
	}

	status, _ = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionRemoveVolume), powerflex.RemoveVolumeRequest{RemoveMode: powerflex.RemoveModeOnlyMe})
	if status != http.StatusInternalServerError {
		t.Errorf("remove while mapped: got status %d, want 500", status)
	}

	status, body = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionRemoveMappedSdc), powerflex.RemoveMappedSdcRequest{SdcID: SdcID})
	if status != http.StatusOK {
		t.Fatalf("unmap: got status %d: %s", status, body)
	}
	status, _ = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionRemoveMappedSdc), powerflex.RemoveMappedSdcRequest{SdcID: SdcID})
	if status != http.StatusInternalServerError {
		t.Errorf("double unmap: got status %d, want 500", status)
	}

	status, body = postJSON(t, client, server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionRemoveVolume), powerflex.RemoveVolumeRequest{RemoveMode: powerflex.RemoveModeOnlyMe})
	if status != http.StatusOK {
		t.Fatalf("remove: got status %d: %s", status, body)
	}

	status, body = postJSON(t, client, server.URL+powerflex.QueryIDByKeyPath, powerflex.QueryIDByKeyRequest{Name: "vol-a"})
	if status != http.StatusNotFound {
		t.Errorf("query removed: got status %d, want 404", status)
	}
	var apiErr powerflex.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatal(err)
	}
	if apiErr.HTTPStatusCode != http.StatusNotFound || apiErr.ErrorCode != http.StatusNotFound {
		t.Errorf("got error body %+v", apiErr)
	}
	if sim.VolumeCount() != 0 {
		t.Errorf("got %d volumes left, want 0", sim.VolumeCount())
	}
}

func TestDuplicateVolumeName(t *testing.T) {
	server := httptest.NewServer(New(nil))
	defer server.Close()

	request := powerflex.CreateVolumeRequest{VolumeSizeInKb: "100", StoragePoolID: StoragePoolID, Name: "dup"}
	status, _ := postJSON(t, server.Client(), server.URL+powerflex.VolumesPath, request)
	if status != http.StatusOK {
		t.Fatalf("first create: got status %d", status)
	}
	status, body := postJSON(t, server.Client(), server.URL+powerflex.VolumesPath, request)
	if status != http.StatusInternalServerError {
		t.Fatalf("second create: got status %d, want 500", status)
	}
	var apiErr powerflex.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(apiErr.Message, "already in use") {
		t.Errorf("got message %q", apiErr.Message)
	}
}

func TestUnknownVolume(t *testing.T) {
	server := httptest.NewServer(New(nil))
	defer server.Close()

	status, _ := getJSON(t, server.Client(), server.URL+powerflex.VolumePath("ffffffffffffffff"))
	if status != http.StatusNotFound {
		t.Errorf("read: got status %d, want 404", status)
	}
	status, _ = postJSON(t, server.Client(), server.URL+powerflex.VolumeActionPath("ffffffffffffffff", powerflex.ActionRemoveVolume), powerflex.RemoveVolumeRequest{RemoveMode: powerflex.RemoveModeOnlyMe})
	if status != http.StatusNotFound {
		t.Errorf("remove: got status %d, want 404", status)
	}
}

func TestMapUnknownSdc(t *testing.T) {
	server := httptest.NewServer(New(nil))
	defer server.Close()

	status, body := postJSON(t, server.Client(), server.URL+powerflex.VolumesPath, powerflex.CreateVolumeRequest{VolumeSizeInKb: "100", StoragePoolID: StoragePoolID, Name: "vol-b"})
	if status != http.StatusOK {
		t.Fatalf("create: got status %d", status)
	}
	var created powerflex.Volume
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}

	status, _ = postJSON(t, server.Client(), server.URL+powerflex.VolumeActionPath(created.ID, powerflex.ActionAddMappedSdc), powerflex.AddMappedSdcRequest{SdcID: "0000000000000000"})
	if status != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", status)
	}
}

func TestInventory(t *testing.T) {
	server := httptest.NewServer(New(nil))
	defer server.Close()
	client := server.Client()

	status, body := getJSON(t, client, server.URL+powerflex.StoragePoolsPath)
	if status != http.StatusOK {
		t.Fatalf("pools: got status %d", status)
	}
	var pools []powerflex.StoragePool
	if err := json.Unmarshal(body, &pools); err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 || pools[0].ID != StoragePoolID || pools[0].Name != StoragePoolName {
		t.Errorf("got pools %+v", pools)
	}

	status, body = getJSON(t, client, server.URL+powerflex.SdcRelationshipsPath(SystemID))
	if status != http.StatusOK {
		t.Fatalf("sdcs: got status %d", status)
	}
	var sdcs []powerflex.Sdc
	if err := json.Unmarshal(body, &sdcs); err != nil {
		t.Fatal(err)
	}
	if len(sdcs) != 1 || sdcs[0].ID != SdcID {
		t.Errorf("got sdcs %+v", sdcs)
	}

	status, _ = getJSON(t, client, server.URL+powerflex.SdcRelationshipsPath("0000000000000000"))
	if status != http.StatusNotFound {
		t.Errorf("unknown system: got status %d, want 404", status)
	}

	status, body = getJSON(t, client, server.URL+powerflex.VersionPath)
	if status != http.StatusOK || strings.TrimSpace(string(body)) != `"3.5"` {
		t.Errorf("version: got status %d body %s", status, body)
	}

	status, body = getJSON(t, client, server.URL+powerflex.LoginPath)
	if status != http.StatusOK || !strings.HasPrefix(strings.TrimSpace(string(body)), `"session-`) {
		t.Errorf("login: got status %d body %s", status, body)
	}
}

func TestServerTLS(t *testing.T) {
	server := NewServer(nil, New(nil), true)
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer server.Shutdown(context.Background())

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + server.Addr() + powerflex.VersionPath)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(body)) != `"3.5"` {
		t.Errorf("got body %s", body)
	}
}
