// httpclient.go is a minimal concrete storage.Client: a generic HTTP
// object-store proxy (GET/PUT against a configured base URL, listing via
// a JSON array response) plus a static host ring hashed with the same
// github.com/OneOfOne/xxhash the orchestrator's placement package uses.
// The real storage/container/account controllers live elsewhere; this
// exists only so cmd/zvmd has something to wire by default instead of
// requiring every deployment to bring its own storage.Client
// implementation before the binary can start.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

// HTTPClient is a generic REST-backed Client: every call maps to one
// HTTP request against BaseURL + path, and ring placement is a static
// host list hashed by path rather than a real cluster map.
type HTTPClient struct {
	BaseURL string
	Hosts   []core.Host
	HTTP    *http.Client
}

// NewHTTPClient builds a Client proxying to baseURL, with hosts as the
// candidate ring for every partition (a single-zone deployment's worth).
func NewHTTPClient(baseURL string, hosts []core.Host) *HTTPClient {
	return &HTTPClient{BaseURL: strings.TrimRight(baseURL, "/"), Hosts: hosts, HTTP: http.DefaultClient}
}

func (c *HTTPClient) url(path string) string { return c.BaseURL + path }

func (c *HTTPClient) ListAccount(ctx context.Context, account, maskRegex string) ([]string, error) {
	return c.list(ctx, "/"+account, maskRegex)
}

func (c *HTTPClient) ListContainer(ctx context.Context, account, container, maskRegex string) ([]string, error) {
	return c.list(ctx, "/"+account+"/"+container, maskRegex)
}

func (c *HTTPClient) list(ctx context.Context, path, maskRegex string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path)+"?format=json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, cos.NewErrBadRequest("listing %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &cos.ErrBackend{Status: resp.StatusCode, Reason: resp.Status}
	}
	var names []string
	if err := jsoniter.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, cos.NewErrUnprocessable("decoding listing for %s: %v", path, err)
	}
	out := names[:0]
	var mask *regexp.Regexp
	if maskRegex != "" {
		mask, err = regexp.Compile(maskRegex)
		if err != nil {
			return nil, cos.NewErrConfigParse("invalid mask %q: %v", maskRegex, err)
		}
	}
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			continue
		}
		if mask != nil && !mask.MatchString(n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *HTTPClient) Get(ctx context.Context, path string) (*GetResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, cos.NewErrBadRequest("GET %s: %v", path, err)
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return &GetResult{
		Status:        resp.StatusCode,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		Valid:         resp.Header.Get("X-Zerovm-Valid") != "",
		Headers:       headers,
		Body:          resp.Body,
	}, nil
}

func (c *HTTPClient) Put(ctx context.Context, path string, headers map[string]string, body io.Reader, contentLength int64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(path), body)
	if err != nil {
		return 0, err
	}
	req.ContentLength = contentLength
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, cos.NewErrBadRequest("PUT %s: %v", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *HTTPClient) ContainerInfo(ctx context.Context, account, container string) (*ContainerInfo, error) {
	partition, hosts := c.RandomPartition(ctx)
	return &ContainerInfo{Partition: partition, Hosts: hosts}, nil
}

func (c *HTTPClient) Ring(_ context.Context, account, container, object string) (int, []core.Host, bool) {
	if len(c.Hosts) == 0 {
		return 0, nil, false
	}
	path := fmt.Sprintf("/%s/%s/%s", account, container, object)
	idx := cos.HashPartition(path, uint64(len(c.Hosts)))
	return int(idx), rotate(c.Hosts, int(idx)), true
}

func (c *HTTPClient) RandomPartition(_ context.Context) (int, []core.Host) {
	if len(c.Hosts) == 0 {
		return 0, nil
	}
	idx := int(cos.HashPartition(cos.GenUUID(), uint64(len(c.Hosts))))
	return idx, rotate(c.Hosts, idx)
}

func rotate(hosts []core.Host, start int) []core.Host {
	out := make([]core.Host, len(hosts))
	for i := range hosts {
		out[i] = hosts[(start+i)%len(hosts)]
	}
	return out
}
