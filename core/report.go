package volstress

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultLanguage = "en"

var localizationPrinter = message.NewPrinter(language.Make(defaultLanguage))

type Counts struct {
	Requests uint64
	Timeouts uint64
	Failures uint64
	Errors   uint64
}

func (c Counts) Successes() uint64 {
	return c.Requests - c.Failures - c.Errors - c.Timeouts
}

func (c Counts) SuccessPercentage() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.Successes()) / float64(c.Requests) * 100
}

func (c Counts) FailurePercentage() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.Failures) / float64(c.Requests) * 100
}

func (c Counts) ErrorPercentage() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.Errors) / float64(c.Requests) * 100
}

func (c Counts) TimeoutPercentage() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.Timeouts) / float64(c.Requests) * 100
}

type Stats struct {
	Title               string
	HasUnmetExpectation bool

	Counts                                 Counts
	StatusCodes                            map[int]int
	FailureTypes, ErrorTypes, TimeoutTypes map[string]int
	RequestBytes, ResponseBytes            uint64

	TTFB, TARS, TRRT                                        []float64 `json:"-"` // raw samples are omitted from JSON in favor of the analyzed results
	TimeToFirstByte, TimeAfterRequestSent, TotalRoundTripTime AnalyzedResults
	Expectation                                             Expectation
}

type AnalyzedResults struct {
	Stats       ResultStats
	Percentiles ResultPercentiles
	Histogram   ResultHistogram
}

type ResultStats struct {
	Minimum, Maximum, Mean, Median, StandardDeviation, FirstQuartile, ThirdQuartile, InterQuartileRange, Midhinge, Trimean float64 // all in nanoseconds
}
type ResultPercentiles struct {
	P80p00, P90p00, P95p00, P99p00, P99p90, P99p99 float64 // all in nanoseconds
}
type ResultHistogram struct {
	Buckets []HistogramBucket
}
type HistogramBucket struct {
	Min, Max float64 // all in nanoseconds
	Count    int
}

type Report struct {
	Environment                   Environment
	ScenariosByClient             map[string]map[string]Scenario
	StepNamesInChronologicalOrder []string
	StatsByStep                   map[string]Stats
	OverallStats                  Stats
	HasUnmetExpectation           bool
}

type reportBuilder struct {
	log  *logrus.Entry
	path string
}

// stepArchive is the aggregated content of one parsed step archive file.
type stepArchive struct {
	Counts                                 Counts
	Expectation                            Expectation
	TTFB, TARS, TRRT                       []float64
	StatusCodes                            map[int]int
	FailureTypes, ErrorTypes, TimeoutTypes map[string]int
	RequestBytes, ResponseBytes            uint64
}

// GenerateResultsReport analyzes the archived results below reportPath and
// writes per-step and overall text and JSON files next to them. To merge the
// results of multiple distributed runs, place each run's archive files in
// their own subfolder below reportPath. The returned report tells whether
// any step expectation went unmet.
func GenerateResultsReport(log *logrus.Entry, reportPath string) (*Report, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	if len(reportPath) == 0 {
		return nil, fmt.Errorf("no report path given")
	}
	b := &reportBuilder{log: log, path: reportPath}
	return b.generate()
}

func (b *reportBuilder) generate() (*Report, error) {
	var (
		scenariosByClient             = make(map[string]map[string]Scenario)
		stepFiles                     = make(map[string][]string)
		stepNamesInChronologicalOrder []string
		recordingEnv                  Environment
		overall                       stepArchive
	)
	overall.StatusCodes = make(map[int]int)
	overall.FailureTypes, overall.ErrorTypes, overall.TimeoutTypes = make(map[string]int), make(map[string]int), make(map[string]int)

	report := &Report{
		StatsByStep: make(map[string]Stats),
	}

	// walk the folder to collect any (distributed) result files
	err := filepath.Walk(b.path,
		func(path string, fileInfo os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fileInfo.IsDir() {
				return nil
			}
			if fileInfo.Name() == scenariosFilename {
				parsedScenarios, env, err := parseScenariosFile(path)
				if err != nil {
					return fmt.Errorf("parse scenarios file %s: %w", path, err)
				}
				recordingEnv = env
				scenariosRunner := strings.Replace(filepath.Dir(path), b.path+"/", "", 1)
				scenariosByClient[scenariosRunner] = parsedScenarios
				return nil
			}
			match, err := filepath.Match(stepFilenameMatch, fileInfo.Name())
			if err != nil {
				return err
			}
			if match {
				b.log.WithField("file", path).Info("found step archive")
				stepName, err := parseStepName(path)
				if err != nil {
					return fmt.Errorf("parse step file %s: %w", path, err)
				}
				if _, exists := stepFiles[stepName]; !exists {
					stepNamesInChronologicalOrder = append(stepNamesInChronologicalOrder, stepName)
				}
				stepFiles[stepName] = append(stepFiles[stepName], path)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	report.ScenariosByClient = scenariosByClient
	report.Environment = recordingEnv
	report.StepNamesInChronologicalOrder = stepNamesInChronologicalOrder

	for i, stepName := range stepNamesInChronologicalOrder {
		step := stepArchive{
			StatusCodes:  make(map[int]int),
			FailureTypes: make(map[string]int),
			ErrorTypes:   make(map[string]int),
			TimeoutTypes: make(map[string]int),
		}
		// could be multiple archive files per step due to merging of distributed runs
		for _, stepFile := range stepFiles[stepName] {
			parsed, err := b.parseStepFile(stepFile)
			if err != nil {
				return nil, fmt.Errorf("parse step file %s: %w", stepFile, err)
			}
			step.merge(parsed)
			// use the expectation from the latest archive parsed
			step.Expectation = parsed.Expectation
		}
		overall.merge(&step)

		statsCollected := Stats{
			Title:         "Step " + strconv.Itoa(i+1),
			Counts:        step.Counts,
			TTFB:          step.TTFB,
			TARS:          step.TARS,
			TRRT:          step.TRRT,
			StatusCodes:   step.StatusCodes,
			FailureTypes:  step.FailureTypes,
			ErrorTypes:    step.ErrorTypes,
			TimeoutTypes:  step.TimeoutTypes,
			RequestBytes:  step.RequestBytes,
			ResponseBytes: step.ResponseBytes,
			Expectation:   step.Expectation,
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("=======================================================================\nStep '%s'\n=======================================================================\n", stepName))
		sb.WriteString("\n\n")
		sb.WriteString(b.analyzeExpectation(&statsCollected))
		sb.WriteString("\n")
		sb.WriteString(b.printDistributions(&statsCollected))
		stepFileTxt := filepath.Join(b.path, "step-"+strconv.Itoa(i+1)+".txt")
		if err := os.WriteFile(stepFileTxt, []byte(sb.String()), 0644); err != nil {
			return nil, fmt.Errorf("write step text file: %w", err)
		}
		b.log.WithField("file", stepFileTxt).Info("step text file written")

		data, err := json.Marshal(statsCollected)
		if err != nil {
			return nil, fmt.Errorf("marshal step stats: %w", err)
		}
		stepFileJSON := filepath.Join(b.path, "step-"+strconv.Itoa(i+1)+".json")
		if err := os.WriteFile(stepFileJSON, data, 0644); err != nil {
			return nil, fmt.Errorf("write step JSON file: %w", err)
		}
		b.log.WithField("file", stepFileJSON).Info("step JSON file written")

		report.StatsByStep[stepName] = statsCollected
		if statsCollected.HasUnmetExpectation {
			report.HasUnmetExpectation = true
		}
	}

	report.OverallStats = Stats{
		Title:         "Overall Results",
		Counts:        overall.Counts,
		TTFB:          overall.TTFB,
		TARS:          overall.TARS,
		TRRT:          overall.TRRT,
		StatusCodes:   overall.StatusCodes,
		FailureTypes:  overall.FailureTypes,
		ErrorTypes:    overall.ErrorTypes,
		TimeoutTypes:  overall.TimeoutTypes,
		RequestBytes:  overall.RequestBytes,
		ResponseBytes: overall.ResponseBytes,
	}

	var sb strings.Builder
	sb.WriteString("=======================================================================\nTotal over all steps\n=======================================================================\n\n")
	sb.WriteString(b.printDistributions(&report.OverallStats))
	sb.WriteString("\n\n\n\n")
	sb.WriteString(fmt.Sprintln("Recording environment: ", recordingEnv))
	// one client per subfolder, multiple clients mean a distributed run
	for client, scenariosOfClient := range scenariosByClient {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintln("Scenarios runner:", client))
		for _, scenario := range scenariosOfClient {
			sb.WriteString(fmt.Sprintln(scenario))
		}
	}
	scenariosFileTxt := filepath.Join(b.path, "scenarios.txt")
	if err := os.WriteFile(scenariosFileTxt, []byte(sb.String()), 0644); err != nil {
		return nil, fmt.Errorf("write scenarios text file: %w", err)
	}
	b.log.WithField("file", scenariosFileTxt).Info("scenarios text file written")

	report.OverallStats.HasUnmetExpectation = report.HasUnmetExpectation
	data, err := json.Marshal(report.OverallStats)
	if err != nil {
		return nil, fmt.Errorf("marshal overall stats: %w", err)
	}
	statsFileJSON := filepath.Join(b.path, "scenarios.json")
	if err := os.WriteFile(statsFileJSON, data, 0644); err != nil {
		return nil, fmt.Errorf("write scenarios JSON file: %w", err)
	}
	b.log.WithField("file", statsFileJSON).Info("scenarios JSON file written")
	return report, nil
}

func (sa *stepArchive) merge(other *stepArchive) {
	sa.Counts.Requests += other.Counts.Requests
	sa.Counts.Timeouts += other.Counts.Timeouts
	sa.Counts.Failures += other.Counts.Failures
	sa.Counts.Errors += other.Counts.Errors
	sa.TTFB = append(sa.TTFB, other.TTFB...)
	sa.TARS = append(sa.TARS, other.TARS...)
	sa.TRRT = append(sa.TRRT, other.TRRT...)
	for k, v := range other.StatusCodes {
		sa.StatusCodes[k] += v
	}
	for k, v := range other.FailureTypes {
		sa.FailureTypes[k] += v
	}
	for k, v := range other.ErrorTypes {
		sa.ErrorTypes[k] += v
	}
	for k, v := range other.TimeoutTypes {
		sa.TimeoutTypes[k] += v
	}
	sa.RequestBytes += other.RequestBytes
	sa.ResponseBytes += other.ResponseBytes
}

func parseScenariosFile(path string) (map[string]Scenario, Environment, error) {
	var env Environment
	f, err := os.Open(path)
	if err != nil {
		return nil, env, err
	}
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, env, err
	}
	dec := gob.NewDecoder(gzr)
	var fileFormatVersion int
	if err := dec.Decode(&fileFormatVersion); err != nil {
		return nil, env, fmt.Errorf("decode file format version: %w", err)
	}
	if err := dec.Decode(&env); err != nil {
		return nil, env, fmt.Errorf("decode environment: %w", err)
	}
	parsedScenarios := make(map[string]Scenario)
	if err := dec.Decode(&parsedScenarios); err != nil {
		return nil, env, fmt.Errorf("decode scenarios: %w", err)
	}
	return parsedScenarios, env, nil
}

// parseStepName reads only the header of a step archive.
func parseStepName(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	dec := gob.NewDecoder(gzr)
	var fileFormatVersion int
	if err := dec.Decode(&fileFormatVersion); err != nil {
		return "", fmt.Errorf("decode file format version: %w", err)
	}
	var stepName string
	if err := dec.Decode(&stepName); err != nil {
		return "", fmt.Errorf("decode step name: %w", err)
	}
	return stepName, nil
}

func (b *reportBuilder) parseStepFile(path string) (*stepArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	dec := gob.NewDecoder(gzr)
	var fileFormatVersion int
	if err := dec.Decode(&fileFormatVersion); err != nil {
		return nil, fmt.Errorf("decode file format version: %w", err)
	}
	var stepName string
	if err := dec.Decode(&stepName); err != nil {
		return nil, fmt.Errorf("decode step name: %w", err)
	}
	parsed := &stepArchive{
		StatusCodes:  make(map[int]int),
		FailureTypes: make(map[string]int),
		ErrorTypes:   make(map[string]int),
		TimeoutTypes: make(map[string]int),
	}
	if err := dec.Decode(&parsed.Expectation); err != nil {
		return nil, fmt.Errorf("decode expectation: %w", err)
	}
	// read the complete stream of step entries until EOF
	for {
		var stepEntry StepEntry
		if err := dec.Decode(&stepEntry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode step entry: %w", err)
		}
		parsed.Counts.Requests++
		parsed.RequestBytes += uint64(stepEntry.RequestSize)
		parsed.ResponseBytes += uint64(stepEntry.ResponseSize)
		if ttfb, completed := stepEntry.Timestamps.TimeToFirstByte(false); completed {
			parsed.TTFB = append(parsed.TTFB, float64(ttfb.Nanoseconds()))
		}
		if tars, completed := stepEntry.Timestamps.TimeToFirstByte(true); completed {
			parsed.TARS = append(parsed.TARS, float64(tars.Nanoseconds()))
		}
		if trrt, completed := stepEntry.Timestamps.TotalDuration(); completed {
			parsed.TRRT = append(parsed.TRRT, float64(trrt.Nanoseconds()))
		}
		if stepEntry.StatusCode > 0 {
			parsed.StatusCodes[stepEntry.StatusCode]++
		}
		if stepEntry.AssertionFailed {
			parsed.Counts.Failures++
			parsed.FailureTypes[stepEntry.AssertionFailedRootCause]++
		}
		if stepEntry.Error {
			parsed.Counts.Errors++
			parsed.ErrorTypes[stepEntry.ErrorRootCause]++
		}
		if stepEntry.Timeout {
			parsed.Counts.Timeouts++
			parsed.TimeoutTypes[stepEntry.TimeoutRootCause]++
		}
	}
	return parsed, nil
}

func (b *reportBuilder) analyzeExpectation(stats *Stats) string {
	var sb strings.Builder
	sb.WriteString("Expectations\n")
	sb.WriteString("-----------------------------------------------------------------------\n")
	s, unmet := writePercentageExpectation(stats.Expectation.SuccessPercentageAtLeast, stats.Counts.SuccessPercentage(), "minimum success percentage expectation", false)
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = writePercentageExpectation(stats.Expectation.FailurePercentageAtMost, stats.Counts.FailurePercentage(), "maximum failure percentage expectation", true)
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = writePercentageExpectation(stats.Expectation.ErrorPercentageAtMost, stats.Counts.ErrorPercentage(), "maximum error percentage expectation", true)
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = writePercentageExpectation(stats.Expectation.TimeoutPercentageAtMost, stats.Counts.TimeoutPercentage(), "maximum timeout percentage expectation", true)
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = b.writePercentileDurationExpectations(stats.Expectation.RoundTripTimePercentileLimits, stats.TRRT, "percentile duration expectation of Total-Round-Trip-Time (TRRT)")
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = b.writePercentileDurationExpectations(stats.Expectation.TimeToFirstBytePercentileLimits, stats.TTFB, "percentile duration expectation of Time-To-First-Byte (TTFB)")
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	s, unmet = writeStatusCodeBelowExpectations(stats.Expectation.StatusCodeBelowThresholds, stats.StatusCodes)
	sb.WriteString(s)
	if unmet {
		stats.HasUnmetExpectation = true
	}
	return sb.String()
}

func writeStatusCodeBelowExpectations(thresholds []*StatusCodeExpectation, codes map[int]int) (result string, unmetExpectation bool) {
	var sb strings.Builder
	for _, t := range thresholds {
		totalCount, belowCount := 0, 0
		for code, count := range codes {
			totalCount += count
			if code < t.StatusCodeBelow {
				belowCount += count
			}
		}
		if totalCount == 0 {
			continue
		}
		actualPercentage := float64(belowCount) / float64(totalCount) * 100
		met := "Met"
		if actualPercentage < t.Percentage {
			met = "Unmet"
			t.Unmet = true
			unmetExpectation = true
		}
		t.ActualValue = actualPercentage
		sb.WriteString(localizationPrinter.Sprintf("%s status code threshold expectation: wanted at least %4.2f%% below status %d: got %4.2f%%\n", met, t.Percentage, t.StatusCodeBelow, actualPercentage))
	}
	return sb.String(), unmetExpectation
}

func (b *reportBuilder) writePercentileDurationExpectations(pctlExpcts []*PercentileExpectation, values []float64, label string) (result string, unmetExpectation bool) {
	var sb strings.Builder
	for _, pctlExpct := range pctlExpcts {
		if pctlExpct.Percentile == 0 {
			continue
		}
		// need at least 100/n values for the n% percentile
		if len(values) < int(math.Ceil(100/pctlExpct.Percentile)) {
			sb.WriteString(fmt.Sprintf("Not enough values for %4.2f percentile calculation\n", pctlExpct.Percentile))
			continue
		}
		percentile, err := stats.Percentile(values, pctlExpct.Percentile)
		if err != nil {
			b.log.WithError(err).Error("unable to calculate percentile")
			continue
		}
		met := "Met"
		actualDuration := time.Duration(percentile)
		if actualDuration > pctlExpct.Duration {
			met = "Unmet"
			pctlExpct.Unmet = true
			unmetExpectation = true
		}
		pctlExpct.ActualValue = actualDuration
		sb.WriteString(fmt.Sprintf("%s %4.2f %s: wanted within %s got %s\n", met, pctlExpct.Percentile, label, pctlExpct.Duration, actualDuration))
	}
	return sb.String(), unmetExpectation
}

func writePercentageExpectation(target *PercentageExpectation, value float64, label string, smallerIsBetter bool) (result string, unmetExpectation bool) {
	if target == nil {
		return
	}
	met, what := "Met", "wanted at least"
	if smallerIsBetter && value > target.Percentage || !smallerIsBetter && value < target.Percentage {
		met = "Unmet"
		target.Unmet = true
		unmetExpectation = true
	}
	if smallerIsBetter {
		what = "wanted at most"
	}
	target.ActualValue = value
	return fmt.Sprintf("%s %s: %s %4.2f%% got %4.2f%%\n", met, label, what, target.Percentage, value), unmetExpectation
}

func (b *reportBuilder) printDistributions(stats *Stats) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintf("Requests: %d\n", stats.Counts.Requests))
	sb.WriteString("-----------------------------------------------------------------------\n")
	successes := stats.Counts.Successes()
	sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: Successes\n", successes, stats.Counts.SuccessPercentage()))
	sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: Failures\n", stats.Counts.Failures, stats.Counts.FailurePercentage()))
	sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: Errors\n", stats.Counts.Errors, stats.Counts.ErrorPercentage()))
	sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: Timeouts\n", stats.Counts.Timeouts, stats.Counts.TimeoutPercentage()))

	statusCodesSum := 0
	for _, count := range stats.StatusCodes {
		statusCodesSum += count
	}
	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Status Codes:", statusCodesSum))
	sb.WriteString("-----------------------------------------------------------------------\n")
	for _, pair := range sortByCountInt(stats.StatusCodes) {
		sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: Response Status %d\n", pair.value, float64(pair.value)/float64(stats.Counts.Requests)*100, pair.key))
	}

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Failures:", stats.Counts.Failures))
	sb.WriteString("-----------------------------------------------------------------------\n")
	for _, pair := range sortByCount(stats.FailureTypes) {
		sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: %s\n", pair.value, float64(pair.value)/float64(stats.Counts.Failures)*100, pair.key))
	}

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Errors:", stats.Counts.Errors))
	sb.WriteString("-----------------------------------------------------------------------\n")
	for _, pair := range sortByCount(stats.ErrorTypes) {
		sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: %s\n", pair.value, float64(pair.value)/float64(stats.Counts.Errors)*100, pair.key))
	}

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Timeouts:", stats.Counts.Timeouts))
	sb.WriteString("-----------------------------------------------------------------------\n")
	for _, pair := range sortByCount(stats.TimeoutTypes) {
		sb.WriteString(localizationPrinter.Sprintf("%9d = %6.2f%%: %s\n", pair.value, float64(pair.value)/float64(stats.Counts.Timeouts)*100, pair.key))
	}

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintf("Traffic Bytes:  %15d\n", stats.RequestBytes+stats.ResponseBytes))
	sb.WriteString("-----------------------------------------------------------------------\n")
	sb.WriteString(localizationPrinter.Sprintf("Request Bytes:  %15d\n", stats.RequestBytes))
	sb.WriteString(localizationPrinter.Sprintf("Response Bytes: %15d\n", stats.ResponseBytes))

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Total-Round-Trip-Time (TRRT):", len(stats.TRRT), "Requests"))
	sb.WriteString("-----------------------------------------------------------------------")
	sb.WriteString("\n>>> Stats <<<\n")
	s, resultStats := b.printStats(stats.TRRT)
	stats.TotalRoundTripTime.Stats = resultStats
	sb.WriteString(s)
	sb.WriteString("\n>>> Percentiles <<<\n")
	s, resultPercentiles := b.printPercentiles(stats.TRRT)
	stats.TotalRoundTripTime.Percentiles = resultPercentiles
	sb.WriteString(s)
	sb.WriteString("\n>>> Histogram <<<\n")
	s, resultHistogram := b.printHistogram(stats.TRRT)
	stats.TotalRoundTripTime.Histogram = resultHistogram
	sb.WriteString(s)

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Time-To-First-Byte (TTFB):", len(stats.TTFB), "Requests"))
	sb.WriteString("-----------------------------------------------------------------------")
	sb.WriteString("\n>>> Stats <<<\n")
	s, resultStats = b.printStats(stats.TTFB)
	stats.TimeToFirstByte.Stats = resultStats
	sb.WriteString(s)
	sb.WriteString("\n>>> Percentiles <<<\n")
	s, resultPercentiles = b.printPercentiles(stats.TTFB)
	stats.TimeToFirstByte.Percentiles = resultPercentiles
	sb.WriteString(s)
	sb.WriteString("\n>>> Histogram <<<\n")
	s, resultHistogram = b.printHistogram(stats.TTFB)
	stats.TimeToFirstByte.Histogram = resultHistogram
	sb.WriteString(s)

	sb.WriteString("\n")
	sb.WriteString("\n")
	sb.WriteString(localizationPrinter.Sprintln("Time-After-Request-Sent (TARS):", len(stats.TARS), "Requests"))
	sb.WriteString("-----------------------------------------------------------------------")
	sb.WriteString("\n>>> Stats <<<\n")
	s, resultStats = b.printStats(stats.TARS)
	stats.TimeAfterRequestSent.Stats = resultStats
	sb.WriteString(s)
	sb.WriteString("\n>>> Percentiles <<<\n")
	s, resultPercentiles = b.printPercentiles(stats.TARS)
	stats.TimeAfterRequestSent.Percentiles = resultPercentiles
	sb.WriteString(s)
	sb.WriteString("\n>>> Histogram <<<\n")
	s, resultHistogram = b.printHistogram(stats.TARS)
	stats.TimeAfterRequestSent.Histogram = resultHistogram
	sb.WriteString(s)

	sb.WriteString("\n")
	return sb.String()
}

func (b *reportBuilder) printHistogram(values []float64) (result string, analyzed ResultHistogram) {
	if len(values) == 0 {
		return
	}
	buf := new(bytes.Buffer)
	hist := histogram.Hist(10, values)
	err := histogram.Fprintf(buf, hist, histogram.Linear(20), func(v float64) string {
		return localizationPrinter.Sprint(time.Duration(v))
	})
	for _, bucket := range hist.Buckets {
		analyzed.Buckets = append(analyzed.Buckets, HistogramBucket{
			Min:   bucket.Min,
			Max:   bucket.Max,
			Count: bucket.Count,
		})
	}
	if err != nil {
		b.log.WithError(err).Error("unable to create histogram")
	}
	return buf.String(), analyzed
}

func (b *reportBuilder) printPercentiles(values []float64) (result string, analyzed ResultPercentiles) {
	if len(values) < 10 {
		return
	}
	var sb strings.Builder
	percentileOf := func(p float64) float64 {
		v, err := stats.Percentile(values, p)
		if err != nil {
			b.log.WithError(err).Error("unable to calculate percentile")
		}
		return v
	}
	analyzed.P80p00 = percentileOf(80)
	analyzed.P90p00 = percentileOf(90)
	analyzed.P95p00 = percentileOf(95)
	analyzed.P99p00 = percentileOf(99)
	analyzed.P99p90 = percentileOf(99.9)
	analyzed.P99p99 = percentileOf(99.99)

	sb.WriteString(localizationPrinter.Sprintln("Percent 80.00%:", time.Duration(analyzed.P80p00)))
	sb.WriteString(localizationPrinter.Sprintln("Percent 90.00%:", time.Duration(analyzed.P90p00)))
	sb.WriteString(localizationPrinter.Sprintln("Percent 95.00%:", time.Duration(analyzed.P95p00)))
	sb.WriteString(localizationPrinter.Sprintln("Percent 99.00%:", time.Duration(analyzed.P99p00)))
	sb.WriteString(localizationPrinter.Sprintln("Percent 99.90%:", time.Duration(analyzed.P99p90)))
	sb.WriteString(localizationPrinter.Sprintln("Percent 99.99%:", time.Duration(analyzed.P99p99)))

	return sb.String(), analyzed
}

func (b *reportBuilder) printStats(values []float64) (result string, analyzed ResultStats) {
	if len(values) == 0 {
		return
	}
	var sb strings.Builder
	calc := func(what string, fn func(stats.Float64Data) (float64, error)) float64 {
		v, err := fn(values)
		if err != nil {
			b.log.WithError(err).WithField("stat", what).Error("unable to calculate stat")
		}
		return v
	}
	analyzed.Minimum = calc("minimum", stats.Min)
	analyzed.Maximum = calc("maximum", stats.Max)
	analyzed.Mean = calc("mean", stats.Mean)
	analyzed.Median = calc("median", stats.Median)
	analyzed.StandardDeviation = calc("standard deviation", stats.StandardDeviation)
	qrtls, err := stats.Quartile(values)
	if err != nil {
		b.log.WithError(err).Error("unable to calculate quartiles")
	}
	analyzed.FirstQuartile = qrtls.Q1
	analyzed.ThirdQuartile = qrtls.Q3
	analyzed.InterQuartileRange = calc("inter-quartile range", stats.InterQuartileRange)
	analyzed.Midhinge = calc("midhinge", stats.Midhinge)
	analyzed.Trimean = calc("trimean", stats.Trimean)

	sb.WriteString(localizationPrinter.Sprintln("Minimum:", time.Duration(analyzed.Minimum)))
	sb.WriteString(localizationPrinter.Sprintln("Maximum:", time.Duration(analyzed.Maximum)))
	sb.WriteString(localizationPrinter.Sprintln("Mean:", time.Duration(analyzed.Mean)))
	sb.WriteString(localizationPrinter.Sprintln("Median:", time.Duration(analyzed.Median)))
	sb.WriteString(localizationPrinter.Sprintln("Standard Deviation:", time.Duration(analyzed.StandardDeviation)))
	sb.WriteString(localizationPrinter.Sprintln("First Quartile:", time.Duration(analyzed.FirstQuartile)))
	sb.WriteString(localizationPrinter.Sprintln("Third Quartile:", time.Duration(analyzed.ThirdQuartile)))
	sb.WriteString(localizationPrinter.Sprintln("Inter-Quartile Range:", time.Duration(analyzed.InterQuartileRange)))
	sb.WriteString(localizationPrinter.Sprintln("Midhinge:", time.Duration(analyzed.Midhinge)))
	sb.WriteString(localizationPrinter.Sprintln("Trimean:", time.Duration(analyzed.Trimean)))

	return sb.String(), analyzed
}
