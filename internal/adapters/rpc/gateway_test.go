package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := NewHTTPGateway(HTTPConfig{
		BaseURL:   server.URL + "/",
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   5 * time.Second,
		RetryMax:  2,
	}, nil)
	require.NoError(t, err)
	return gw
}

func TestNewHTTPGateway_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(HTTPConfig{}, nil)
	assert.Error(t, err)
}

func TestHTTPGateway_Call(t *testing.T) {
	var gotPath, gotAuth string
	var gotArgs ItemPlatformArgs

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotArgs)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": [{"selling_platform": "eBay", "status": "Active", "qty": 2, "price": 12.5}]}`))
	})

	items, err := ItemPlatformAsync.Invoke(context.Background(), gw, ItemPlatformArgs{ItemCode: "ITEM-00042"})
	require.NoError(t, err)

	assert.Equal(t, "/api/method/erpnext_ebay.custom_methods.item_methods.item_platform_async", gotPath)
	assert.Equal(t, "token key:secret", gotAuth)
	assert.Equal(t, "ITEM-00042", gotArgs.ItemCode)

	require.Len(t, items, 1)
	assert.Equal(t, "eBay", items[0].SellingPlatform)
	assert.Equal(t, 12.5, items[0].Price)
}

func TestHTTPGateway_NullMessage(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": null}`))
	})

	items, err := ItemPlatformAsync.Invoke(context.Background(), gw, ItemPlatformArgs{ItemCode: "ITEM-1"})
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestHTTPGateway_CacheVersions(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": [true, false]}`))
	})

	versions, err := CheckCacheVersions.Invoke(context.Background(), gw, struct{}{})
	require.NoError(t, err)
	assert.True(t, versions.Categories)
	assert.False(t, versions.Features)
	assert.False(t, versions.Current())
}

func TestHTTPGateway_RemoteError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusExpectationFailed)
		_, _ = w.Write([]byte(`{
			"exc_type": "TimestampMismatchError",
			"exception": "frappe.exceptions.TimestampMismatchError",
			"_server_messages": "[\"{\\\"message\\\": \\\"Document has been modified after you have opened it\\\"}\"]"
		}`))
	})

	_, err := SaveWithRotations.Invoke(context.Background(), gw, SaveWithRotationsArgs{Doc: json.RawMessage(`{"name": "SS-1"}`)})
	require.Error(t, err)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusExpectationFailed, rerr.Status)
	assert.Equal(t, "TimestampMismatchError", rerr.Type)
	assert.Equal(t, "Document has been modified after you have opened it", rerr.Message)
	assert.NotEmpty(t, rerr.Payload)

	assert.ErrorIs(t, err, ErrTimestampMismatch)
	assert.NotErrorIs(t, err, ErrPermission)
}

func TestHTTPGateway_NonJSONError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Forbidden\n"))
	})

	err := gw.Call(context.Background(), "some.method", nil, nil)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Forbidden", rerr.Message)
	assert.Equal(t, "some.method: Forbidden (status 403)", rerr.Error())
}

func TestHTTPGateway_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"message": {"success": true}}`))
	})

	result, err := ProcessNewImages.Invoke(context.Background(), gw, ProcessNewImagesArgs{
		ItemCode:   "ITEM-1",
		RealtimeID: "rte_admin_1",
		Tag:        "ITEM-1_42",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGateway_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"exc_type": "ServiceUnavailable"}`))
	})

	err := gw.Call(context.Background(), "some.method", nil, nil)
	assert.ErrorIs(t, err, &RemoteError{})
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGateway_ContextCancelled(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": []}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetCategories.Invoke(ctx, gw, GetCategoriesArgs{})
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeGateway records calls and replays a canned message.
type fakeGateway struct {
	method string
	args   any
	reply  string
	err    error
}

func (f *fakeGateway) Call(_ context.Context, method string, args any, out any) error {
	f.method, f.args = method, args
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func TestMethod_Invoke(t *testing.T) {
	gw := &fakeGateway{reply: `[{"value": "267", "label": "Books"}, {"value": "550", "label": "Art"}]`}

	args := UpdateCategoriesArgs{
		CategoryLevel: 1,
		CategoryStack: CategoryStack{"267", "0", "0", "0", "0", "0"},
	}
	options, err := UpdateCategories.Invoke(context.Background(), gw, args)
	require.NoError(t, err)

	assert.Equal(t, UpdateCategories.Name, gw.method)
	assert.Equal(t, args, gw.args)
	assert.Equal(t, []CategoryOption{{Value: "267", Label: "Books"}, {Value: "550", Label: "Art"}}, options)
}

func TestMethod_InvokeError(t *testing.T) {
	gw := &fakeGateway{err: ErrPermission}

	_, err := GetCategories.Invoke(context.Background(), gw, GetCategoriesArgs{})
	assert.ErrorIs(t, err, ErrPermission)
}
