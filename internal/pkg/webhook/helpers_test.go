package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/accounting"
	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
	"github.com/ManuelReschke/ledgersync/internal/pkg/testutil"
)

const (
	testSecret = "verifier-token"
	testRealm  = "4620816365"
)

// fakeAccountingAPI serves /v3/company/{realm}/{entity}/{id} from a map keyed
// by "{entity}/{id}" in lower case.
type fakeAccountingAPI struct {
	mu       sync.Mutex
	entities map[string]string
	hits     map[string]int
	server   *httptest.Server
}

func newFakeAccountingAPI(t *testing.T) *fakeAccountingAPI {
	api := &fakeAccountingAPI{entities: map[string]string{}, hits: map[string]int{}}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 5 || parts[0] != "v3" || parts[1] != "company" {
			http.NotFound(w, r)
			return
		}
		key := parts[3] + "/" + parts[4]

		api.mu.Lock()
		api.hits[key]++
		body, ok := api.entities[key]
		api.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"Object Not Found"}]}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"%s":%s,"time":"2026-01-01T00:00:00Z"}`, entityName(parts[3]), body)
	}))
	t.Cleanup(api.server.Close)
	return api
}

func entityName(path string) string {
	switch path {
	case "customer":
		return models.EntityTypeCustomer
	case "invoice":
		return models.EntityTypeInvoice
	case "payment":
		return models.EntityTypePayment
	}
	return path
}

func (a *fakeAccountingAPI) set(entity, id, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entities[strings.ToLower(entity)+"/"+id] = body
}

func (a *fakeAccountingAPI) client() *accounting.Client {
	return &accounting.Client{
		AccessToken:  "access-token",
		RealmID:      testRealm,
		APIBaseURL:   a.server.URL,
		MinorVersion: "75",
		FetchTimeout: 2 * time.Second,
		HTTPClient:   a.server.Client(),
	}
}

type pipeline struct {
	db         *gorm.DB
	deliveries repository.DeliveryRepository
	entities   repository.EntityRepository
	api        *fakeAccountingAPI
	supervisor *Supervisor
}

func newPipeline(t *testing.T, opts Options, submitter Submitter) *pipeline {
	t.Helper()
	db := testutil.OpenTestDB(t)
	repos := repository.NewRepositories(db)
	api := newFakeAccountingAPI(t)

	if opts.Source == "" {
		opts.Source = "quickbooks"
	}
	if opts.VerifierToken == "" {
		opts.VerifierToken = testSecret
	}
	registry := entitysync.NewDefaultRegistry(api.client(), repos.Entity, opts.Source)

	return &pipeline{
		db:         db,
		deliveries: repos.Delivery,
		entities:   repos.Entity,
		api:        api,
		supervisor: NewSupervisor(NewEventLog(repos.Delivery, nil), registry, submitter, opts),
	}
}

func (p *pipeline) post(body string, signed bool) Response {
	req := Request{Body: []byte(body)}
	if signed {
		req.Signature = ComputeSignature(req.Body, testSecret)
	}
	return p.supervisor.Handle(context.Background(), req)
}

func (p *pipeline) row(t *testing.T, id uint) *models.WebhookDelivery {
	t.Helper()
	require.NotZero(t, id)
	d, err := p.deliveries.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func notificationBody(entities ...string) string {
	return fmt.Sprintf(`{"eventNotifications":[{"realmId":%q,"dataChangeEvent":{"entities":[%s]}}]}`,
		testRealm, strings.Join(entities, ","))
}

func entity(name, id, op string) string {
	return fmt.Sprintf(`{"name":%q,"id":%q,"operation":%q,"lastUpdated":"2026-01-01T00:00:00Z"}`, name, id, op)
}
