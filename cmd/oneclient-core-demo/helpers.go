package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/helpercache"
	"golang.org/x/oauth2"
)

// memHelper is an in-memory stand-in for a real storage helper (POSIX,
// S3, Ceph, ...): it backs each fileID with a byte slice, just enough to
// exercise helpercache.Cache's construction and caching path.
type memHelper struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemHelper() *memHelper {
	return &memHelper{data: make(map[string][]byte)}
}

func (h *memHelper) Read(_ context.Context, fileID string, offset, size int64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.data[fileID]
	if offset >= int64(len(buf)) {
		return nil, nil
	}
	end := offset + size
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	out := make([]byte, end-offset)
	copy(out, buf[offset:end])
	return out, nil
}

func (h *memHelper) Write(_ context.Context, fileID string, offset int64, data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.data[fileID]
	end := offset + int64(len(data))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:end], data)
	h.data[fileID] = buf
	return len(data), nil
}

// demoHelperFactory always reports direct access and hands back the same
// memHelper for every storage ID, since the demo has exactly one fake
// backend.
type demoHelperFactory struct {
	helper *memHelper
}

func newDemoHelperFactory() helpercache.Factory {
	return &demoHelperFactory{helper: newMemHelper()}
}

func (f *demoHelperFactory) NewHelper(storageID string, access helpercache.AccessType) (helpercache.Helper, error) {
	return f.helper, nil
}

func (f *demoHelperFactory) ProbeAccess(_ context.Context, storageID string) (helpercache.AccessType, error) {
	return helpercache.AccessDirect, nil
}

// demoTokenRefresher issues a new, sequentially numbered bearer token on
// every refresh, standing in for a real OIDC provider's token endpoint.
type demoTokenRefresher struct {
	counter int
}

func (r *demoTokenRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	r.counter++
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("demo-access-token-%d", r.counter),
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}
