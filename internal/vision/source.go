package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	snapshotTimeout  = 5 * time.Second
	maxSnapshotBytes = 32 << 20
)

// ErrLocalDevice is returned for numeric sources, which name a local capture
// device this build cannot open.
var ErrLocalDevice = errors.New("local capture devices are not supported")

// OpenSource resolves a camera source string. http(s) URLs are polled as
// still-image snapshot endpoints, numeric strings are local device indexes
// and anything else is a file path re-read on every call.
func OpenSource(source string) (FrameSource, error) {
	s := strings.TrimSpace(source)
	switch {
	case s == "":
		return nil, fmt.Errorf("camera source is empty")
	case isDeviceIndex(s):
		return nil, fmt.Errorf("open device %s: %w", s, ErrLocalDevice)
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return &snapshotSource{
			url:        s,
			httpClient: &http.Client{Timeout: snapshotTimeout},
		}, nil
	default:
		if _, err := os.Stat(s); err != nil {
			return nil, fmt.Errorf("open file source: %w", err)
		}
		return &fileSource{path: s}, nil
	}
}

func isDeviceIndex(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

type snapshotSource struct {
	url        string
	httpClient *http.Client
	seq        atomic.Uint64
}

func (s *snapshotSource) Read(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("snapshot returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now().UTC(),
		Format:    contentType(resp.Header.Get("Content-Type"), data),
		Data:      data,
		Source:    s.url,
	}, nil
}

func (s *snapshotSource) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

type fileSource struct {
	path string
	seq  atomic.Uint64
}

func (f *fileSource) Read(context.Context) (*Frame, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read frame file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &Frame{
		Seq:       f.seq.Add(1),
		Timestamp: time.Now().UTC(),
		Format:    http.DetectContentType(data),
		Data:      data,
		Source:    f.path,
	}, nil
}

func (f *fileSource) Close() error { return nil }

func contentType(header string, data []byte) string {
	if header != "" {
		return header
	}
	return http.DetectContentType(data)
}
