package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var (
	ErrNotFound      = errors.New("tenant override not found")
	ErrInvalidRecord = errors.New("invalid tenant override")
)

// KV is the subset of clientv3.KV the repository needs. *clientv3.Client
// satisfies it.
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
}

// Override replaces the process-wide quota ceilings for one tenant.
// Dimensions missing from Quotas keep the default ceiling.
type Override struct {
	TenantID string           `json:"tenant_id"`
	Plan     string           `json:"plan,omitempty"`
	Quotas   map[string]int64 `json:"quotas"`
	Created  time.Time        `json:"created"`
	Updated  time.Time        `json:"updated"`
}

func (o Override) Validate() error {
	if o.TenantID == "" || strings.Contains(o.TenantID, "/") {
		return fmt.Errorf("%w: tenant id %q", ErrInvalidRecord, o.TenantID)
	}
	for dim, ceiling := range o.Quotas {
		if ceiling < 0 {
			return fmt.Errorf("%w: %s ceiling must not be negative", ErrInvalidRecord, dim)
		}
	}
	return nil
}

// Repository stores overrides as JSON under prefix + tenant id.
type Repository struct {
	kv     KV
	prefix string
	now    func() time.Time
}

func NewRepository(kv KV, prefix string) *Repository {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Repository{kv: kv, prefix: prefix, now: time.Now}
}

func (r *Repository) key(tenantID string) string {
	return r.prefix + tenantID
}

func (r *Repository) Get(ctx context.Context, tenantID string) (Override, error) {
	resp, err := r.kv.Get(ctx, r.key(tenantID))
	if err != nil {
		return Override{}, fmt.Errorf("etcd get %s: %w", tenantID, err)
	}
	if len(resp.Kvs) == 0 {
		return Override{}, ErrNotFound
	}
	var o Override
	if err := json.Unmarshal(resp.Kvs[0].Value, &o); err != nil {
		return Override{}, fmt.Errorf("decode override %s: %w", tenantID, err)
	}
	return o, nil
}

// Save creates or replaces an override, keeping the original creation time.
func (r *Repository) Save(ctx context.Context, o Override) (Override, error) {
	if err := o.Validate(); err != nil {
		return Override{}, err
	}
	now := r.now().UTC()
	existing, err := r.Get(ctx, o.TenantID)
	switch {
	case err == nil:
		o.Created = existing.Created
	case errors.Is(err, ErrNotFound):
		o.Created = now
	default:
		return Override{}, err
	}
	o.Updated = now

	data, err := json.Marshal(o)
	if err != nil {
		return Override{}, fmt.Errorf("encode override %s: %w", o.TenantID, err)
	}
	if _, err := r.kv.Put(ctx, r.key(o.TenantID), string(data)); err != nil {
		return Override{}, fmt.Errorf("etcd put %s: %w", o.TenantID, err)
	}
	return o, nil
}

func (r *Repository) Delete(ctx context.Context, tenantID string) error {
	resp, err := r.kv.Delete(ctx, r.key(tenantID))
	if err != nil {
		return fmt.Errorf("etcd delete %s: %w", tenantID, err)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every stored override. Undecodable records are skipped and
// reported through skipped.
func (r *Repository) List(ctx context.Context) (overrides []Override, skipped []string, err error) {
	resp, err := r.kv.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, nil, fmt.Errorf("etcd list %s: %w", r.prefix, err)
	}
	overrides = make([]Override, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var o Override
		if err := json.Unmarshal(kv.Value, &o); err != nil {
			skipped = append(skipped, string(kv.Key))
			continue
		}
		overrides = append(overrides, o)
	}
	return overrides, skipped, nil
}
