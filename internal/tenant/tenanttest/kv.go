// Package tenanttest provides an in-memory stand-in for the etcd KV API.
package tenanttest

import (
	"context"
	"sort"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KV is an in-memory KV honouring the key ranges built by clientv3 options
// such as WithPrefix. Set Err to make every call fail.
type KV struct {
	mu   sync.Mutex
	data map[string]string
	Err  error
}

func NewKV() *KV {
	return &KV{data: make(map[string]string)}
}

// Raw stores value under key without encoding.
func (f *KV) Raw(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

// Has reports whether key is present.
func (f *KV) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// Fail sets or clears the error returned by every call.
func (f *KV) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

func (f *KV) match(key string, opts []clientv3.OpOption) []string {
	end := clientv3.OpGet(key, opts...).RangeBytes()
	var keys []string
	for k := range f.data {
		if end == nil {
			if k == key {
				keys = append(keys, k)
			}
			continue
		}
		if k >= key && k < string(end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *KV) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	resp := &clientv3.GetResponse{}
	for _, k := range f.match(key, opts) {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.data[k])})
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func (f *KV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (f *KV) Delete(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	keys := f.match(key, opts)
	for _, k := range keys {
		delete(f.data, k)
	}
	return &clientv3.DeleteResponse{Deleted: int64(len(keys))}, nil
}
