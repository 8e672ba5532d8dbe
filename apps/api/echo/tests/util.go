package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/pkg/errors"

	. "github.com/trezcool/recordbook/apps/api/echo"
	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
	"github.com/trezcool/recordbook/services/logger"
	"github.com/trezcool/recordbook/services/metrics"
	"github.com/trezcool/recordbook/storage/database/inmem"
	"github.com/trezcool/recordbook/tests"
)

const sessionHeader = "X-Session-Token"

var errConnRefused = errors.New("connection refused")

// flakyRepo fails every call while `fail` is set.
type flakyRepo struct {
	record.Repository

	mu   sync.Mutex
	fail bool
}

func (r *flakyRepo) setFail(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *flakyRepo) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errConnRefused
	}
	return nil
}

func (r *flakyRepo) QueryRecords(ctx context.Context, coll string) ([]record.Record, error) {
	if err := r.err(); err != nil {
		return nil, err
	}
	return r.Repository.QueryRecords(ctx, coll)
}

func (r *flakyRepo) CreateRecord(ctx context.Context, coll string, rec record.Record) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.CreateRecord(ctx, coll, rec)
}

func (r *flakyRepo) UpdateRecord(ctx context.Context, coll string, rec record.Record) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.UpdateRecord(ctx, coll, rec)
}

func (r *flakyRepo) DeleteRecord(ctx context.Context, coll string, id int64) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.DeleteRecord(ctx, coll, id)
}

func (r *flakyRepo) DeleteCollection(ctx context.Context, coll string) error {
	if err := r.err(); err != nil {
		return err
	}
	return r.Repository.DeleteCollection(ctx, coll)
}

type testApp struct {
	server  *Server
	repo    *flakyRepo
	metrics *metricsvc.Metrics
}

func setup(t *testing.T, configure ...func(*core.Config)) testApp {
	t.Helper()
	conf := testutil.NewConfig()
	conf.Debug = false
	conf.Records.Schema = record.ContactSchema.Name
	for _, fn := range configure {
		fn(conf)
	}

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	repo := &flakyRepo{Repository: inmemdb.NewRecordRepository(db)}

	var buf bytes.Buffer
	logger := logsvc.New(&buf, "TEST : ", log.LstdFlags, conf)
	metrics := metricsvc.New("test")
	svc := record.NewService(repo, record.ContactSchema, logger)

	return testApp{
		server:  NewServer(conf, logger, svc, metrics),
		repo:    repo,
		metrics: metrics,
	}
}

// client keeps the session token handed out by the server.
type client struct {
	t     *testing.T
	app   http.Handler
	token string
}

func newClient(t *testing.T, app http.Handler) *client {
	return &client{t: t, app: app}
}

func (c *client) do(method, path string, data ...interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	if len(data) > 0 {
		switch d := data[0].(type) {
		case []byte:
			body.Write(d)
		default:
			body.Write(marshalObj(c.t, d))
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(sessionHeader, c.token)
	}
	rec := httptest.NewRecorder()
	c.app.ServeHTTP(rec, req)

	if token := rec.Header().Get(sessionHeader); token != "" {
		c.token = token
	}
	return rec
}

type snapshot struct {
	Records []record.Record   `json:"records"`
	Editing *int64            `json:"editing"`
	Input   record.Fields     `json:"input"`
	Changed bool              `json:"changed"`
	Errors  map[string]string `json:"errors"`
}

func (s snapshot) texts(field string) []string {
	out := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r.Fields[field])
	}
	return out
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) snapshot {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var snap snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decodeSnapshot() failed: %v", err)
	}
	return snap
}

func jsonUnmarshal(rec *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, wantCode int, wantData []byte, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(wantData))
	}
}

func contact(first, last, mobile string) map[string]interface{} {
	return map[string]interface{}{"firstName": first, "lastName": last, "mobile": mobile}
}

func withID(id int64, body map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"id": id}
	for k, v := range body {
		out[k] = v
	}
	return out
}
