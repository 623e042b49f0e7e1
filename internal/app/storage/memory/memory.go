package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/etl"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/pii"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	users        map[string]user.User
	sessions     map[string]user.Session
	targets      map[string]dq.Target
	rules        map[string]dq.Rule
	runs         map[string]dq.Run
	violations   map[string][]dq.Violation
	metricPoints map[string][]dq.MetricPoint
	alerts       []alert.Alert
	pipelines    map[string]etl.Pipeline
	pipelineRuns map[string][]etl.Run
	piiFields    map[string]pii.Field
	dsars        map[string]pii.DSARRequest
	auditEvents  []audit.Event
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.TargetStore = (*Store)(nil)
var _ storage.RuleStore = (*Store)(nil)
var _ storage.RunStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.PipelineStore = (*Store)(nil)
var _ storage.PIIStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		users:        make(map[string]user.User),
		sessions:     make(map[string]user.Session),
		targets:      make(map[string]dq.Target),
		rules:        make(map[string]dq.Rule),
		runs:         make(map[string]dq.Run),
		violations:   make(map[string][]dq.Violation),
		metricPoints: make(map[string][]dq.MetricPoint),
		pipelines:    make(map[string]etl.Pipeline),
		pipelineRuns: make(map[string][]etl.Run),
		piiFields:    make(map[string]pii.Field),
		dsars:        make(map[string]pii.DSARRequest),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}
	for _, other := range s.users {
		if strings.EqualFold(other.Username, u.Username) {
			return user.User{}, fmt.Errorf("username %s already taken", u.Username)
		}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return user.User{}, fmt.Errorf("user %s not found", username)
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %s not found", id)
	}
	delete(s.users, id)
	return nil
}

// SessionStore implementation -------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess user.Session) (user.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.nextIDLocked()
	}
	sess.CreatedAt = time.Now().UTC()
	s.sessions[sess.TokenHash] = sess
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, hash string) (user.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[hash]
	if !ok {
		return user.Session{}, fmt.Errorf("session not found")
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, hash)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, hash)
		}
	}
	return nil
}

// TargetStore implementation --------------------------------------------------

func (s *Store) CreateTarget(_ context.Context, t dq.Target) (dq.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.targets[t.ID]; exists {
		return dq.Target{}, fmt.Errorf("target %s already exists", t.ID)
	}
	for _, other := range s.targets {
		if strings.EqualFold(other.Name, t.Name) {
			return dq.Target{}, fmt.Errorf("target name %s already taken", t.Name)
		}
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.targets[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTarget(_ context.Context, t dq.Target) (dq.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.targets[t.ID]
	if !ok {
		return dq.Target{}, fmt.Errorf("target %s not found", t.ID)
	}
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	s.targets[t.ID] = t
	return t, nil
}

func (s *Store) GetTarget(_ context.Context, id string) (dq.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return dq.Target{}, fmt.Errorf("target %s not found", id)
	}
	return t, nil
}

func (s *Store) GetTargetByName(_ context.Context, name string) (dq.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.targets {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return dq.Target{}, fmt.Errorf("target %s not found", name)
}

func (s *Store) ListTargets(_ context.Context) ([]dq.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dq.Target, 0, len(s.targets))
	for _, t := range s.targets {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteTarget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[id]; !ok {
		return fmt.Errorf("target %s not found", id)
	}
	delete(s.targets, id)
	return nil
}

// RuleStore implementation ----------------------------------------------------

func (s *Store) CreateRule(_ context.Context, r dq.Rule) (dq.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	} else if _, exists := s.rules[r.ID]; exists {
		return dq.Rule{}, fmt.Errorf("rule %s already exists", r.ID)
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Params = cloneMap(r.Params)

	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) UpdateRule(_ context.Context, r dq.Rule) (dq.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.rules[r.ID]
	if !ok {
		return dq.Rule{}, fmt.Errorf("rule %s not found", r.ID)
	}
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Params = cloneMap(r.Params)

	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) GetRule(_ context.Context, id string) (dq.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return dq.Rule{}, fmt.Errorf("rule %s not found", id)
	}
	return r, nil
}

func (s *Store) ListRules(_ context.Context, targetID string) ([]dq.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dq.Rule, 0)
	for _, r := range s.rules {
		if targetID == "" || r.TargetID == targetID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListDueRules(_ context.Context, now time.Time) ([]dq.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dq.Rule, 0)
	for _, r := range s.rules {
		if r.Enabled && r.Schedule != "" && !r.NextRun.After(now) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NextRun.Before(result[j].NextRun) })
	return result, nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(s.rules, id)
	return nil
}

// RunStore implementation -----------------------------------------------------

func (s *Store) CreateRun(_ context.Context, run dq.Run) (dq.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = s.nextIDLocked()
	} else if _, exists := s.runs[run.ID]; exists {
		return dq.Run{}, fmt.Errorf("run %s already exists", run.ID)
	}
	run.CreatedAt = time.Now().UTC()

	s.runs[run.ID] = run
	return run, nil
}

func (s *Store) UpdateRun(_ context.Context, run dq.Run) (dq.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.runs[run.ID]
	if !ok {
		return dq.Run{}, fmt.Errorf("run %s not found", run.ID)
	}
	run.CreatedAt = original.CreatedAt

	s.runs[run.ID] = run
	return run, nil
}

func (s *Store) GetRun(_ context.Context, id string) (dq.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return dq.Run{}, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}

func (s *Store) ListRuns(_ context.Context, ruleID string, limit int) ([]dq.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dq.Run, 0)
	for _, run := range s.runs {
		if ruleID == "" || run.RuleID == ruleID {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateViolation(_ context.Context, v dq.Violation) (dq.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	}
	v.CreatedAt = time.Now().UTC()
	v.Sample = cloneMap(v.Sample)

	s.violations[v.RunID] = append(s.violations[v.RunID], v)
	return v, nil
}

func (s *Store) ListViolations(_ context.Context, runID string) ([]dq.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dq.Violation, len(s.violations[runID]))
	copy(out, s.violations[runID])
	return out, nil
}

func (s *Store) CreateMetricPoint(_ context.Context, p dq.MetricPoint) (dq.MetricPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	s.metricPoints[p.RuleID] = append(s.metricPoints[p.RuleID], p)
	return p, nil
}

func (s *Store) ListMetricPoints(_ context.Context, ruleID, name string, limit int) ([]dq.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dq.MetricPoint, 0)
	for _, p := range s.metricPoints[ruleID] {
		if name == "" || p.Name == name {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecordedAt.After(result[j].RecordedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AlertStore implementation ---------------------------------------------------

func (s *Store) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	a.CreatedAt = time.Now().UTC()
	s.alerts = append(s.alerts, a)
	return a, nil
}

func (s *Store) ListAlerts(_ context.Context, limit int) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Alert, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PipelineStore implementation ------------------------------------------------

func (s *Store) CreatePipeline(_ context.Context, p etl.Pipeline) (etl.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.pipelines[p.ID]; exists {
		return etl.Pipeline{}, fmt.Errorf("pipeline %s already exists", p.ID)
	}
	for _, other := range s.pipelines {
		if strings.EqualFold(other.Name, p.Name) {
			return etl.Pipeline{}, fmt.Errorf("pipeline name %s already taken", p.Name)
		}
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Mappings = append([]etl.Mapping(nil), p.Mappings...)

	s.pipelines[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePipeline(_ context.Context, p etl.Pipeline) (etl.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.pipelines[p.ID]
	if !ok {
		return etl.Pipeline{}, fmt.Errorf("pipeline %s not found", p.ID)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Mappings = append([]etl.Mapping(nil), p.Mappings...)

	s.pipelines[p.ID] = p
	return p, nil
}

func (s *Store) GetPipeline(_ context.Context, id string) (etl.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pipelines[id]
	if !ok {
		return etl.Pipeline{}, fmt.Errorf("pipeline %s not found", id)
	}
	return p, nil
}

func (s *Store) ListPipelines(_ context.Context) ([]etl.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]etl.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListDuePipelines(_ context.Context, now time.Time) ([]etl.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]etl.Pipeline, 0)
	for _, p := range s.pipelines {
		if p.Enabled && p.Schedule != "" && !p.NextRun.After(now) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NextRun.Before(result[j].NextRun) })
	return result, nil
}

func (s *Store) DeletePipeline(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[id]; !ok {
		return fmt.Errorf("pipeline %s not found", id)
	}
	delete(s.pipelines, id)
	return nil
}

func (s *Store) CreatePipelineRun(_ context.Context, run etl.Run) (etl.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = s.nextIDLocked()
	}
	run.CreatedAt = time.Now().UTC()
	s.pipelineRuns[run.PipelineID] = append(s.pipelineRuns[run.PipelineID], run)
	return run, nil
}

func (s *Store) UpdatePipelineRun(_ context.Context, run etl.Run) (etl.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := s.pipelineRuns[run.PipelineID]
	for i, existing := range runs {
		if existing.ID == run.ID {
			run.CreatedAt = existing.CreatedAt
			runs[i] = run
			return run, nil
		}
	}
	return etl.Run{}, fmt.Errorf("pipeline run %s not found", run.ID)
}

func (s *Store) ListPipelineRuns(_ context.Context, pipelineID string, limit int) ([]etl.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]etl.Run, len(s.pipelineRuns[pipelineID]))
	copy(out, s.pipelineRuns[pipelineID])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PIIStore implementation -----------------------------------------------------

func (s *Store) CreatePIIField(_ context.Context, f pii.Field) (pii.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	}
	for _, other := range s.piiFields {
		if other.TargetID == f.TargetID && strings.EqualFold(other.Dataset, f.Dataset) && strings.EqualFold(other.Column, f.Column) {
			return pii.Field{}, fmt.Errorf("pii field %s.%s already cataloged", f.Dataset, f.Column)
		}
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	s.piiFields[f.ID] = f
	return f, nil
}

func (s *Store) UpdatePIIField(_ context.Context, f pii.Field) (pii.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.piiFields[f.ID]
	if !ok {
		return pii.Field{}, fmt.Errorf("pii field %s not found", f.ID)
	}
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	s.piiFields[f.ID] = f
	return f, nil
}

func (s *Store) GetPIIField(_ context.Context, id string) (pii.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.piiFields[id]
	if !ok {
		return pii.Field{}, fmt.Errorf("pii field %s not found", id)
	}
	return f, nil
}

func (s *Store) ListPIIFields(_ context.Context, targetID string) ([]pii.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pii.Field, 0)
	for _, f := range s.piiFields {
		if targetID == "" || f.TargetID == targetID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeletePIIField(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.piiFields[id]; !ok {
		return fmt.Errorf("pii field %s not found", id)
	}
	delete(s.piiFields, id)
	return nil
}

func (s *Store) CreateDSAR(_ context.Context, req pii.DSARRequest) (pii.DSARRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.dsars[req.ID] = req
	return req, nil
}

func (s *Store) UpdateDSAR(_ context.Context, req pii.DSARRequest) (pii.DSARRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.dsars[req.ID]
	if !ok {
		return pii.DSARRequest{}, fmt.Errorf("dsar %s not found", req.ID)
	}
	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.dsars[req.ID] = req
	return req, nil
}

func (s *Store) GetDSAR(_ context.Context, id string) (pii.DSARRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.dsars[id]
	if !ok {
		return pii.DSARRequest{}, fmt.Errorf("dsar %s not found", id)
	}
	return req, nil
}

func (s *Store) ListDSARs(_ context.Context) ([]pii.DSARRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pii.DSARRequest, 0, len(s.dsars))
	for _, req := range s.dsars {
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) CreateAuditEvent(_ context.Context, e audit.Event) (audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.auditEvents = append(s.auditEvents, e)
	return e, nil
}

func (s *Store) ListAuditEvents(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Event, len(s.auditEvents))
	copy(out, s.auditEvents)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
