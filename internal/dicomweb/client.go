// Package dicomweb is the QIDO-RS data source behind the worklist: study
// search capped at the worklist limit and per-study series lookups.
package dicomweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"radiology-worklist/internal/models"
)

// ErrStatus wraps non-2xx QIDO responses.
var ErrStatus = errors.New("dicomweb: unexpected status")

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryMax is zero by default: every search is a single attempt.
	RetryMax      int
	UploadEnabled bool
	Limit         int
}

// SourceConfig is what the worklist screen needs to know about its data
// source.
type SourceConfig struct {
	DicomUploadEnabled bool `json:"dicomUploadEnabled"`
}

// zerologAdapter satisfies retryablehttp.LeveledLogger.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Error(msg string, kv ...interface{}) { a.log.Warn().Fields(kv).Msg(msg) }
func (a zerologAdapter) Warn(msg string, kv ...interface{})  { a.log.Warn().Fields(kv).Msg(msg) }
func (a zerologAdapter) Info(msg string, kv ...interface{})  { a.log.Debug().Fields(kv).Msg(msg) }
func (a zerologAdapter) Debug(msg string, kv ...interface{}) { a.log.Trace().Fields(kv).Msg(msg) }

type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	log        zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = zerologAdapter{log: log}
	if cfg.Limit <= 0 {
		cfg.Limit = 101
	}
	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:        cfg,
		log:        log,
	}
}

func (c *Client) Config() SourceConfig {
	return SourceConfig{DicomUploadEnabled: c.cfg.UploadEnabled}
}

var studyFields = []string{"00081030", "00080060", "00080061", "00201208"}

// wildcard wraps a free-text filter for QIDO fuzzy matching.
func wildcard(s string) string {
	if s == "" || strings.ContainsAny(s, "*?") {
		return s
	}
	return "*" + s + "*"
}

// StudyParams maps a worklist query onto QIDO-RS query parameters.
func (c *Client) StudyParams(q models.StudyQuery) url.Values {
	p := url.Values{}
	if q.PatientName != "" {
		p.Set("PatientName", wildcard(q.PatientName))
	}
	if q.MRN != "" {
		p.Set("PatientID", q.MRN)
	}
	if q.StartDate != "" || q.EndDate != "" {
		p.Set("StudyDate", q.StartDate+"-"+q.EndDate)
	}
	if q.Description != "" {
		p.Set("StudyDescription", wildcard(q.Description))
	}
	if len(q.Modalities) > 0 {
		p.Set("ModalitiesInStudy", strings.Join(q.Modalities, ","))
	}
	if q.Accession != "" {
		p.Set("AccessionNumber", q.Accession)
	}
	limit := q.Limit
	if limit <= 0 || limit > c.cfg.Limit {
		limit = c.cfg.Limit
	}
	p.Set("limit", strconv.Itoa(limit))
	if q.Offset > 0 {
		p.Set("offset", strconv.Itoa(q.Offset))
	}
	p.Set("fuzzymatching", "true")
	for _, f := range studyFields {
		p.Add("includefield", f)
	}
	return p
}

// SearchStudies runs one QIDO-RS study search.
func (c *Client) SearchStudies(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
	var ds []Dataset
	if err := c.get(ctx, "/studies", c.StudyParams(q), &ds); err != nil {
		return nil, fmt.Errorf("search studies: %w", err)
	}
	out := make([]*models.Study, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Study())
	}
	return out, nil
}

// SearchSeries lists the series of one study.
func (c *Client) SearchSeries(ctx context.Context, studyInstanceUID string) ([]*models.Series, error) {
	var ds []Dataset
	path := "/studies/" + url.PathEscape(studyInstanceUID) + "/series"
	if err := c.get(ctx, path, nil, &ds); err != nil {
		return nil, fmt.Errorf("search series of %s: %w", studyInstanceUID, err)
	}
	out := make([]*models.Series, 0, len(ds))
	for _, d := range ds {
		s := d.Series()
		if s.StudyInstanceUID == "" {
			s.StudyInstanceUID = studyInstanceUID
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/dicom+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// QIDO answers an empty match with 204.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
