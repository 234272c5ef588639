package rangereader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

// HTTPRange is a RangeReader translating each read_at into a Range: request
// against a single fixed URL, retrying for the remainder whenever the
// server returns fewer bytes than requested (spec §4.7).
type HTTPRange struct {
	Client *http.Client
	URL    string
}

// NewHTTPRange returns an HTTPRange reader for url, using client (or
// http.DefaultClient if nil).
func NewHTTPRange(client *http.Client, url string) *HTTPRange {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRange{Client: client, URL: url}
}

// ReadAt issues one or more Range requests until length bytes starting at
// offset have been collected.
func (h *HTTPRange) ReadAt(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, 0, length)
	curOffset := offset
	remaining := length

	for remaining > 0 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			return nil, archiveerr.New(archiveerr.InvalidUri, "build range request", err)
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", curOffset, curOffset+uint64(remaining)-1))

		resp, err := h.Client.Do(req)
		if err != nil {
			return nil, archiveerr.New(archiveerr.Http, "range request failed", err)
		}

		if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, archiveerr.New(archiveerr.Http, fmt.Sprintf("unexpected range response status %d", resp.StatusCode), nil)
		}

		got, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, archiveerr.New(archiveerr.Http, "read range response body", err)
		}
		if resp.StatusCode == http.StatusOK {
			// The server ignored Range and sent the whole resource from byte 0.
			if uint64(len(got)) <= curOffset {
				return nil, archiveerr.New(archiveerr.Http, "full response shorter than requested offset", nil)
			}
			got = got[curOffset:]
		}
		if len(got) == 0 {
			return nil, archiveerr.New(archiveerr.Http, "range request returned no data", nil)
		}

		buf = append(buf, got...)
		curOffset += uint64(len(got))
		if uint32(len(got)) >= remaining {
			break
		}
		remaining -= uint32(len(got))
	}

	return buf[:length], nil
}
