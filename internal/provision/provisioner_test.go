package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/docschema/internal/schema"
)

// memTarget is an in-memory document store that enforces index names and
// unique keys the way a real engine would.
type memTarget struct {
	collections []string
	indexes     map[string][]schema.Index
	docs        map[string][]map[string]any

	// failures keyed by "op:object" are returned instead of performing the call
	failures map[string]error
	// raceIndex makes CreateIndex store the index and then report ErrAlreadyExists
	raceIndex bool

	calls []string
}

func newMemTarget() *memTarget {
	return &memTarget{
		indexes:  make(map[string][]schema.Index),
		docs:     make(map[string][]map[string]any),
		failures: make(map[string]error),
	}
}

func (m *memTarget) Engine() string { return "memory" }

func (m *memTarget) ListCollections(_ context.Context) ([]string, error) {
	m.calls = append(m.calls, "list-collections")
	if err := m.failures["list-collections"]; err != nil {
		return nil, err
	}
	return append([]string(nil), m.collections...), nil
}

func (m *memTarget) CreateCollection(_ context.Context, name string) error {
	m.calls = append(m.calls, "create-collection:"+name)
	if err := m.failures["create-collection:"+name]; err != nil {
		return err
	}
	for _, c := range m.collections {
		if c == name {
			return fmt.Errorf("%w: collection %s", schema.ErrAlreadyExists, name)
		}
	}
	m.collections = append(m.collections, name)
	return nil
}

func (m *memTarget) ListIndexes(_ context.Context, collection string) ([]schema.Index, error) {
	m.calls = append(m.calls, "list-indexes:"+collection)
	if err := m.failures["list-indexes:"+collection]; err != nil {
		return nil, err
	}
	return append([]schema.Index(nil), m.indexes[collection]...), nil
}

func (m *memTarget) CreateIndex(_ context.Context, collection string, index schema.Index) error {
	m.calls = append(m.calls, "create-index:"+collection+"."+index.Name)
	if err := m.failures["create-index:"+collection+"."+index.Name]; err != nil {
		return err
	}

	for _, existing := range m.indexes[collection] {
		if existing.Name == index.Name {
			return fmt.Errorf("%w: index %s exists with different options", schema.ErrConflict, index.Name)
		}
	}

	if index.Unique {
		seen := make(map[string]bool)
		for _, doc := range m.docs[collection] {
			var parts []string
			for _, k := range index.Keys {
				parts = append(parts, fmt.Sprint(doc[k.Field]))
			}
			key := strings.Join(parts, "|")
			if seen[key] {
				return fmt.Errorf("%w: duplicate key %s", schema.ErrDataConflict, key)
			}
			seen[key] = true
		}
	}

	m.indexes[collection] = append(m.indexes[collection], index)
	if m.raceIndex {
		return fmt.Errorf("%w: index %s", schema.ErrAlreadyExists, index.Name)
	}
	return nil
}

func (m *memTarget) creates() []string {
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, "create-") {
			out = append(out, c)
		}
	}
	return out
}

func emailIndex(unique bool) schema.Index {
	return schema.Index{Name: "email_1", Keys: []schema.Key{{Field: "email", Direction: schema.Ascending}}, Unique: unique}
}

func TestApplyEmptyDatabase(t *testing.T) {
	target := newMemTarget()

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, 7, report.Created())
	assert.Equal(t, 0, report.Present())
	assert.Equal(t, "chat_app", report.Database)
	assert.Equal(t, "memory", report.Target)
	assert.Equal(t, []string{"users", "conversations", "chat_messages"}, target.collections)
	assert.Len(t, target.indexes["conversations"], 2)
	assert.Equal(t, emailIndex(true), target.indexes["users"][0])

	// Each collection's catalog is read once.
	var lists int
	for _, c := range target.calls {
		if strings.HasPrefix(c, "list-indexes:") {
			lists++
		}
	}
	assert.Equal(t, 3, lists)
}

func TestApplyIsIdempotent(t *testing.T) {
	target := newMemTarget()
	p := New(Options{})

	_, err := p.Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	collections := append([]string(nil), target.collections...)
	indexes := make(map[string][]schema.Index)
	for k, v := range target.indexes {
		indexes[k] = append([]schema.Index(nil), v...)
	}
	target.calls = nil

	report, err := p.Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created())
	assert.Equal(t, 7, report.Present())
	assert.Empty(t, target.creates())
	assert.Equal(t, collections, target.collections)
	assert.Equal(t, indexes, target.indexes)
}

func TestApplyCreatesOnlyMissingObjects(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users", "conversations"}
	target.indexes["users"] = []schema.Index{emailIndex(true)}
	target.indexes["conversations"] = []schema.Index{
		{Name: "participants_1", Keys: []schema.Key{{Field: "participants", Direction: schema.Ascending}}},
	}

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Created())
	assert.Equal(t, 4, report.Present())
	assert.Equal(t, []string{
		"create-collection:chat_messages",
		"create-index:chat_messages.conversation_id_1_timestamp_-1",
		"create-index:conversations.last_message_time_-1",
	}, target.creates())
	assert.Len(t, target.indexes["users"], 1)
	assert.Len(t, target.indexes["conversations"], 2)
}

func TestApplyEquivalentIndexUnderOtherName(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users"}
	byEmail := emailIndex(true)
	byEmail.Name = "users_by_email"
	target.indexes["users"] = []schema.Index{byEmail}

	plan := &schema.Plan{
		Collections: []schema.CollectionSpec{{Name: "users"}},
		Indexes:     []schema.IndexSpec{{Collection: "users", Keys: byEmail.Keys, Unique: true}},
	}

	report, err := New(Options{}).Apply(context.Background(), target, plan)
	require.NoError(t, err)

	require.Len(t, report.Indexes(), 1)
	outcome := report.Indexes()[0]
	assert.Equal(t, StatusPresent, outcome.Status)
	assert.Equal(t, "users_by_email", outcome.MatchedAs)
	assert.Empty(t, target.creates())
}

func TestApplyNameConflict(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users", "conversations", "chat_messages"}
	target.indexes["users"] = []schema.Index{emailIndex(false)}

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindConflict, pe.Kind)
	assert.Equal(t, "users", pe.Collection)
	assert.Equal(t, "email_1", pe.Index)
	require.NotNil(t, pe.Desired)
	require.NotNil(t, pe.Existing)
	assert.True(t, pe.Desired.Unique)
	assert.False(t, pe.Existing.Unique)
	assert.ErrorIs(t, err, schema.ErrConflict)
	assert.Contains(t, err.Error(), "want email_1 (email asc) unique, found email_1 (email asc)")

	// The existing index is untouched and nothing was attempted on users.
	assert.Equal(t, []schema.Index{emailIndex(false)}, target.indexes["users"])
	assert.NotContains(t, target.creates(), "create-index:users.email_1")
	// Objects before the conflict are still reported.
	assert.Equal(t, 3, report.Created())
	assert.Equal(t, 3, report.Present())
}

func TestApplySameKeysDifferentUniqueness(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users"}
	legacy := emailIndex(false)
	legacy.Name = "legacy_email"
	target.indexes["users"] = []schema.Index{legacy}

	plan := &schema.Plan{
		Collections: []schema.CollectionSpec{{Name: "users"}},
		Indexes:     []schema.IndexSpec{{Collection: "users", Keys: legacy.Keys, Unique: true}},
	}

	_, err := New(Options{}).Apply(context.Background(), target, plan)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindConflict, pe.Kind)
	assert.Equal(t, "legacy_email", pe.Existing.Name)
	assert.Empty(t, target.creates())
}

func TestApplyDataConflict(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users"}
	target.docs["users"] = []map[string]any{
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "a@example.com"},
	}

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindDataConflict, pe.Kind)
	assert.Equal(t, "create-index", pe.Op)
	assert.Equal(t, "email_1", pe.Index)
	require.NotNil(t, pe.Desired)
	assert.True(t, pe.Desired.Unique)
	assert.ErrorIs(t, err, schema.ErrDataConflict)
	assert.NotErrorIs(t, err, schema.ErrConnectivity)
	assert.Contains(t, err.Error(), "cannot enforce email_1 (email asc) unique")

	assert.Empty(t, target.indexes["users"])
	assert.Equal(t, 6, len(report.Outcomes))
}

func TestApplyConnectivityFailure(t *testing.T) {
	target := newMemTarget()
	target.failures["list-collections"] = fmt.Errorf("%w: server selection timeout", schema.ErrConnectivity)

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindConnectivity, pe.Kind)
	assert.Equal(t, "list-collections", pe.Op)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, []string{"list-collections"}, target.calls)
}

func TestApplyAuthorizationFailure(t *testing.T) {
	target := newMemTarget()
	target.failures["create-collection:conversations"] = fmt.Errorf("%w: not allowed to create", schema.ErrAuthorization)

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAuthorization, pe.Kind)
	assert.Equal(t, "conversations", pe.Collection)
	assert.Equal(t, "create-collection conversations: not authorized: not allowed to create", err.Error())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "users", report.Outcomes[0].Name())
	assert.NotContains(t, target.calls, "create-collection:chat_messages")
}

func TestApplyCollectionCreatedConcurrently(t *testing.T) {
	target := newMemTarget()
	target.failures["create-collection:users"] = fmt.Errorf("%w: namespace exists", schema.ErrAlreadyExists)

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	assert.Equal(t, StatusPresent, report.Collections()[0].Status)
	assert.Equal(t, 6, report.Created())
	assert.Equal(t, 1, report.Present())
}

func TestApplyIndexCreatedConcurrently(t *testing.T) {
	target := newMemTarget()
	target.raceIndex = true

	report, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	for _, o := range report.Indexes() {
		assert.Equal(t, StatusPresent, o.Status, o.Name())
	}
	assert.Len(t, target.indexes["conversations"], 2)
}

func TestApplyIndexRejectedWithoutCatalogEntry(t *testing.T) {
	target := newMemTarget()
	target.failures["create-index:users.email_1"] = fmt.Errorf("%w: IndexKeySpecsConflict", schema.ErrConflict)

	_, err := New(Options{}).Apply(context.Background(), target, schema.DefaultPlan())

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindConflict, pe.Kind)
	assert.NotNil(t, pe.Desired)
	assert.Nil(t, pe.Existing)
}

func TestApplyDryRun(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users"}
	target.indexes["users"] = []schema.Index{emailIndex(true)}

	report, err := New(Options{DryRun: true}).Apply(context.Background(), target, schema.DefaultPlan())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 0, report.Created())
	assert.Equal(t, 2, report.Present())
	assert.Equal(t, 5, report.Planned())
	assert.Empty(t, target.creates())
	// Collections that do not exist yet have no catalog to read.
	assert.Equal(t, []string{"list-collections", "list-indexes:users"}, target.calls)
}

func TestApplyDryRunStillReportsConflicts(t *testing.T) {
	target := newMemTarget()
	target.collections = []string{"users"}
	target.indexes["users"] = []schema.Index{emailIndex(false)}

	_, err := New(Options{DryRun: true}).Apply(context.Background(), target, schema.DefaultPlan())
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestApplyInvalidPlan(t *testing.T) {
	target := newMemTarget()
	plan := &schema.Plan{Collections: []schema.CollectionSpec{{Name: ""}}}

	_, err := New(Options{}).Apply(context.Background(), target, plan)

	assert.Equal(t, KindInvalid, KindOf(err))
	assert.ErrorIs(t, err, schema.ErrInvalidPlan)
	assert.Empty(t, target.calls)
}

func TestApplyCanceledContext(t *testing.T) {
	target := newMemTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Apply(ctx, target, schema.DefaultPlan())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.creates())
}

func TestApplyExpiredDeadline(t *testing.T) {
	target := newMemTarget()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := New(Options{}).Apply(ctx, target, schema.DefaultPlan())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, schema.ErrConnectivity)
	assert.Equal(t, KindConnectivity, KindOf(err))
	assert.Empty(t, target.creates())
}

func TestApplyRejectsPaddedCollectionName(t *testing.T) {
	target := newMemTarget()
	plan := &schema.Plan{
		Collections: []schema.CollectionSpec{{Name: " users"}},
		Indexes: []schema.IndexSpec{{
			Collection: "users",
			Keys:       []schema.Key{{Field: "email", Direction: schema.Ascending}},
		}},
	}

	_, err := New(Options{}).Apply(context.Background(), target, plan)

	assert.Equal(t, KindInvalid, KindOf(err))
	assert.Empty(t, target.calls)
	assert.Empty(t, target.collections)
	assert.Empty(t, target.indexes)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: fmt.Errorf("x: %w", schema.ErrConnectivity), want: KindConnectivity},
		{err: fmt.Errorf("x: %w", schema.ErrAuthorization), want: KindAuthorization},
		{err: fmt.Errorf("x: %w", schema.ErrConflict), want: KindConflict},
		{err: fmt.Errorf("x: %w", schema.ErrDataConflict), want: KindDataConflict},
		{err: schema.ErrInvalidPlan, want: KindInvalid},
		{err: errors.New("boom"), want: KindUnknown},
		{err: &Error{Kind: KindAuthorization, Err: errors.New("denied")}, want: KindAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
