// Package inventory fetches static node metadata over REST. It is not part of
// the streaming path; pages use it to label per-disk charts.
package inventory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Disk is one entry of a node's disk list.
type Disk struct {
	Index      int
	Device     string
	Mountpoint string
	Total      float64
}

// Client talks to the metadata API.
type Client struct {
	baseURL    string
	credential credential.Provider
	http       *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:7070).
func NewClient(baseURL string, provider credential.Provider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: provider,
		http:       &http.Client{Timeout: timeout},
	}
}

// Disks returns the disks of nodeID in index order.
func (c *Client) Disks(ctx context.Context, nodeID string) ([]Disk, error) {
	token, ok := "", false
	if c.credential != nil {
		token, ok = c.credential.Credential()
	}
	if !ok {
		return nil, errors.New(errors.ErrCredential,
			"No credential available for disk list",
			"Set NODEWATCH_TOKEN or credential.token in .nodewatch.yaml")
	}

	u := c.baseURL + "/disk_list/" + url.PathEscape(nodeID) + "?" + url.Values{"token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid API base URL: "+c.baseURL, "Check server.api_base")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport, "Disk list request failed", "Check the agent is reachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport, "Reading disk list failed", "")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.New(errors.ErrAuth, "Disk list request was rejected", "Check the token")
	case resp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.ErrServer,
			fmt.Sprintf("Disk list request failed with HTTP %d", resp.StatusCode), "")
	}

	return ParseDisks(body)
}

// ParseDisks decodes {"disks":[...]} or a bare array. Indexes default to the
// position in the list.
func ParseDisks(body []byte) ([]Disk, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New(errors.ErrDecode, "Disk list is not valid JSON", "")
	}

	root := gjson.ParseBytes(body)
	list := root
	if root.IsObject() {
		list = root.Get("disks")
	}
	if !list.IsArray() {
		return nil, errors.New(errors.ErrDecode, "Disk list has no disks array", "")
	}

	var disks []Disk
	for i, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		d := Disk{
			Index:      i,
			Device:     firstString(item, "device", "name"),
			Mountpoint: firstString(item, "mountpoint", "mount", "mount_point"),
		}
		if n, ok := codec.Number(item.Get("index")); ok {
			d.Index = int(n)
		}
		if n, ok := codec.Number(item.Get("total")); ok {
			d.Total = n
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := item.Get(k); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}
