package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gatewatch/internal/domain/gate"
)

const inferenceTimeout = 5 * time.Second

// HTTPDetector posts frames to an object detection service and filters the
// returned boxes by confidence and, optionally, by label.
type HTTPDetector struct {
	endpoint   string
	minConf    float64
	allow      map[string]struct{}
	httpClient *http.Client
}

// NewHTTPDetector builds a detector client. A nil or empty allow set keeps
// every label.
func NewHTTPDetector(endpoint string, minConf float64, allow map[string]struct{}) *HTTPDetector {
	return &HTTPDetector{
		endpoint:   endpoint,
		minConf:    minConf,
		allow:      allow,
		httpClient: &http.Client{Timeout: inferenceTimeout},
	}
}

type detectResponse struct {
	Detections []gate.Detection `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, frame *Frame) ([]gate.Detection, error) {
	var resp detectResponse
	q := url.Values{"conf": {strconv.FormatFloat(d.minConf, 'f', -1, 64)}}
	if err := postFrame(ctx, d.httpClient, d.endpoint, q, frame, &resp); err != nil {
		return nil, err
	}

	out := make([]gate.Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		det.Label = strings.ToLower(strings.TrimSpace(det.Label))
		if det.Confidence < d.minConf {
			continue
		}
		if len(d.allow) > 0 {
			if _, ok := d.allow[det.Label]; !ok {
				continue
			}
		}
		out = append(out, det)
	}
	return out, nil
}

// postFrame sends the raw frame bytes and decodes a JSON response into out.
func postFrame(ctx context.Context, client *http.Client, endpoint string, q url.Values, frame *Frame, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid inference endpoint: %w", err)
	}
	if len(q) > 0 {
		merged := u.Query()
		for k, vs := range q {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("create inference request: %w", err)
	}
	if frame.Format != "" {
		req.Header.Set("Content-Type", frame.Format)
	} else {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("inference service returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode inference response: %w", err)
	}
	return nil
}
