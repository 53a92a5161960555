package handler_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/model"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDirectory struct {
	people   map[string]*model.Person
	channels map[string][]string
	err      error

	gotQuery  string
	gotLimit  int
	gotOffset int
}

func (m *mockDirectory) Search(_ context.Context, query string, limit, offset int) (*service.PeoplePage, error) {
	m.gotQuery, m.gotLimit, m.gotOffset = query, limit, offset
	if m.err != nil {
		return nil, m.err
	}
	page := &service.PeoplePage{Query: query, Limit: limit, Offset: offset, Total: len(m.people), People: []model.Person{}}
	for _, p := range m.people {
		page.People = append(page.People, *p)
	}
	return page, nil
}

func (m *mockDirectory) GetPerson(_ context.Context, username string) (*model.Person, error) {
	if m.err != nil {
		return nil, m.err
	}
	if err := service.ValidateUsername(username); err != nil {
		return nil, err
	}
	p, ok := m.people[username]
	if !ok {
		return nil, apperror.NotFound("person", username)
	}
	return p, nil
}

func (m *mockDirectory) ChannelMembers(_ context.Context, channel string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	if channel == "" {
		return nil, apperror.ValidationFailed("channel", "channel is required")
	}
	if channel[0] != '#' {
		channel = "#" + channel
	}
	return m.channels[channel], nil
}

type mockReconciler struct {
	mu       sync.Mutex
	users    []service.Request
	prs      []int
	allCalls int
}

func (m *mockReconciler) ProcessUser(_ context.Context, req service.Request) (service.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, req)
	return service.Result{Username: req.Username, PRNumber: req.PRNumber, State: service.StateDone}, nil
}

func (m *mockReconciler) ProcessPullRequest(_ context.Context, number int) ([]service.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prs = append(m.prs, number)
	return nil, nil
}

func (m *mockReconciler) ProcessAll(context.Context) ([]service.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allCalls++
	return nil, nil
}

// mockQueue keeps submitted jobs so tests can run them synchronously.
type mockQueue struct {
	jobs []service.Job
	err  error
}

func (m *mockQueue) Submit(job service.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockQueue) runAll() error {
	for _, job := range m.jobs {
		if err := job.Run(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

type mockAuth struct {
	password string
	result   *service.TokenResult
	err      error
}

func (m *mockAuth) Login(_ context.Context, password string) (*service.TokenResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}
	if password != m.password {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	return m.result, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }
