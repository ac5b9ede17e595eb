package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/sync/singleflight"

	"github.com/storeit/dashboard/internal/logger"
	"github.com/storeit/dashboard/internal/matching"
	"github.com/storeit/dashboard/internal/models"
	"github.com/storeit/dashboard/internal/snapshot"
)

// Snapshot keys in the store.
const (
	HostsKey     = "hosts"
	CustomersKey = "customers"
)

// Radius validation constants
const (
	MinRadiusMeters = 1
	MaxRadiusMeters = 50000
)

// Host index scopes.
const (
	IndexAvailableHosts = "available"
	IndexAllHosts       = "all"
)

const maxSuggestions = 3

// DefaultFetchTimeout bounds a shared table fetch when Options.FetchTimeout is unset.
const DefaultFetchTimeout = 30 * time.Second

// Service-level errors
var (
	ErrSourceUnavailable  = errors.New("table source unavailable")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrInvalidRadius      = errors.New("radius must be between 1 and 50000 meters")
	ErrGeocodingDisabled  = errors.New("address lookup is not configured")
	ErrCustomerNoLocation = errors.New("customer has no coordinates")
)

// CustomerNotFoundError carries close usernames for a failed lookup.
type CustomerNotFoundError struct {
	Username    string
	Suggestions []string
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("customer %q not found", e.Username)
}

func (e *CustomerNotFoundError) Unwrap() error {
	return ErrCustomerNotFound
}

// TableSource loads the raw host and customer tables.
type TableSource interface {
	FetchHosts(ctx context.Context) ([]models.HostRecord, error)
	FetchCustomers(ctx context.Context) ([]models.CustomerRecord, error)
	Name() string
}

// AddressResolver maps postal codes to addresses. Codes without an address are left out.
type AddressResolver interface {
	Addresses(ctx context.Context, postalCodes []string) map[string]string
}

// Options configures a DashboardService.
type Options struct {
	TTL        time.Duration
	Policy     matching.Policy
	MatchIndex string
	Now        func() time.Time

	// FetchTimeout bounds one shared source fetch.
	FetchTimeout time.Duration
}

// Snapshot is the pair of raw tables the views are computed from.
type Snapshot struct {
	Hosts     []models.HostRecord
	Customers []models.CustomerRecord
	FetchedAt time.Time // older of the two tables
	Stale     bool      // served from an expired snapshot because the source failed
}

// MapView is everything the main map draws for one evaluation date.
type MapView struct {
	AsOf        time.Time
	FetchedAt   time.Time
	Hosts       []models.HostRecord
	Customers   []models.CustomerRecord
	Connections []matching.Connection
	Stale       bool
}

// CheckinTable is the check-in table plus the options for its host filter.
type CheckinTable struct {
	Rows  []matching.CheckinRow
	Hosts []string
	Host  string
}

// MatchedHost is a resolved host marker.
type MatchedHost struct {
	Username string
	Location models.Location
}

// Selection is the map for a set of selected customers.
type Selection struct {
	Customers   []models.CustomerRecord
	Hosts       []MatchedHost
	Connections []matching.Connection
}

// CustomerMatch is one customer and, when the reference resolves, its host.
type CustomerMatch struct {
	Customer models.CustomerRecord
	Host     *MatchedHost
}

// NearbyHosts lists available hosts around a customer.
type NearbyHosts struct {
	Customer     models.CustomerRecord
	Center       models.Location
	RadiusMeters int
	Hosts        []matching.HostDistance
}

// HostAddress is an available host and its looked-up address.
type HostAddress struct {
	Username   string
	PostalCode string
	Address    string
	Found      bool
}

// DashboardService computes the dashboard views from cached table snapshots.
type DashboardService interface {
	// Snapshot returns both tables, refetching any that are stale.
	// Returns ErrSourceUnavailable when a fetch fails and no earlier snapshot exists.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Refresh drops the cached tables so the next call refetches.
	Refresh(ctx context.Context) error

	AvailableHosts(ctx context.Context, asOf time.Time) ([]models.HostRecord, error)

	// ActionableCustomers applies the actionable predicate. A nil requirePaid uses the configured policy.
	ActionableCustomers(ctx context.Context, asOf time.Time, requirePaid *bool) ([]models.CustomerRecord, error)

	PendingCustomers(ctx context.Context, asOf time.Time) ([]models.CustomerRecord, error)

	MapView(ctx context.Context, asOf time.Time, requirePaid *bool) (*MapView, error)

	CheckinTable(ctx context.Context, asOf time.Time, host string) (*CheckinTable, error)

	// SelectedCustomers skips usernames that are not actionable.
	SelectedCustomers(ctx context.Context, asOf time.Time, usernames []string) (*Selection, error)

	// CustomerMatch returns a *CustomerNotFoundError when the username is not actionable.
	CustomerMatch(ctx context.Context, asOf time.Time, username string) (*CustomerMatch, error)

	// NearbyHosts returns ErrInvalidRadius outside [MinRadiusMeters, MaxRadiusMeters].
	NearbyHosts(ctx context.Context, asOf time.Time, username string, radiusMeters int) (*NearbyHosts, error)

	// HostAddresses returns ErrGeocodingDisabled when no resolver is configured.
	HostAddresses(ctx context.Context, asOf time.Time) ([]HostAddress, error)
}

type dashboardService struct {
	source   TableSource
	store    snapshot.Store
	resolver AddressResolver
	log      *logger.Logger
	opts     Options
	group    singleflight.Group
}

// NewDashboardService creates a new instance of DashboardService. resolver may be nil.
func NewDashboardService(source TableSource, store snapshot.Store, resolver AddressResolver, opts Options, log *logger.Logger) DashboardService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MatchIndex == "" {
		opts.MatchIndex = IndexAvailableHosts
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &dashboardService{
		source:   source,
		store:    store,
		resolver: resolver,
		log:      log.WithComponent("dashboard"),
		opts:     opts,
	}
}

func (s *dashboardService) Snapshot(ctx context.Context) (*Snapshot, error) {
	hosts, hostsEntry, hostsStale, err := loadTable(ctx, s, HostsKey, s.source.FetchHosts)
	if err != nil {
		return nil, err
	}
	customers, customersEntry, customersStale, err := loadTable(ctx, s, CustomersKey, s.source.FetchCustomers)
	if err != nil {
		return nil, err
	}

	fetchedAt := hostsEntry.FetchedAt
	if customersEntry.FetchedAt.Before(fetchedAt) {
		fetchedAt = customersEntry.FetchedAt
	}

	return &Snapshot{
		Hosts:     hosts,
		Customers: customers,
		FetchedAt: fetchedAt,
		Stale:     hostsStale || customersStale,
	}, nil
}

// loadTable returns the cached table for key, refetching it when stale. Concurrent
// refetches of the same key share one source call, which runs detached from any
// single caller's cancellation. The bool result is true when an
// expired snapshot is served because the source failed.
func loadTable[T any](ctx context.Context, s *dashboardService, key string, fetch func(context.Context) ([]T, error)) ([]T, snapshot.Entry, bool, error) {
	var cached []T
	entry, err := snapshot.GetJSON(ctx, s.store, key, &cached)
	hasCached := err == nil
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		s.log.Warn("Failed to read snapshot", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	now := s.opts.Now()
	if hasCached && !entry.IsStale(now, s.opts.TTL) {
		return cached, entry, false, nil
	}

	type result struct {
		rows  []T
		entry snapshot.Entry
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
		defer cancel()

		rows, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []T{}
		}
		fresh, err := snapshot.PutJSON(fetchCtx, s.store, key, rows, s.opts.Now())
		if err != nil {
			s.log.Warn("Failed to store snapshot", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			fresh = snapshot.Entry{FetchedAt: s.opts.Now()}
		}
		s.log.Info("Fetched table", map[string]interface{}{
			"key":    key,
			"source": s.source.Name(),
			"rows":   len(rows),
		})
		return result{rows: rows, entry: fresh}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		if hasCached {
			return cached, entry, true, nil
		}
		return nil, snapshot.Entry{}, false, fmt.Errorf("%s: %w", key, ctx.Err())
	}

	if err := res.Err; err != nil {
		if hasCached {
			s.log.Warn("Serving stale snapshot after fetch failure", map[string]interface{}{
				"key":    key,
				"source": s.source.Name(),
				"age":    entry.Age(now).String(),
				"error":  err.Error(),
			})
			return cached, entry, true, nil
		}
		s.log.Error("Failed to fetch table", err, map[string]interface{}{
			"key":    key,
			"source": s.source.Name(),
		})
		return nil, snapshot.Entry{}, false, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, key, err)
	}

	r := res.Val.(result)
	if res.Shared {
		s.log.Debug("Shared table fetch", map[string]interface{}{"key": key})
	}
	return r.rows, r.entry, false, nil
}

func (s *dashboardService) Refresh(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to drop snapshots: %w", err)
	}
	s.log.Info("Snapshots invalidated", nil)
	return nil
}

func (s *dashboardService) evaluationDate(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return models.Today(s.opts.Now())
	}
	return models.DateOf(asOf)
}

func (s *dashboardService) AvailableHosts(ctx context.Context, asOf time.Time) ([]models.HostRecord, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return matching.FilterAvailableHosts(snap.Hosts, s.evaluationDate(asOf)), nil
}

func (s *dashboardService) ActionableCustomers(ctx context.Context, asOf time.Time, requirePaid *bool) ([]models.CustomerRecord, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Policy.Actionable(snap.Customers, s.evaluationDate(asOf), requirePaid), nil
}

func (s *dashboardService) PendingCustomers(ctx context.Context, asOf time.Time) ([]models.CustomerRecord, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Policy.Pending(snap.Customers, s.evaluationDate(asOf)), nil
}

// hostIndex builds the Matched Host join target for the configured scope.
func (s *dashboardService) hostIndex(allHosts, availableHosts []models.HostRecord) matching.HostIndex {
	if s.opts.MatchIndex == IndexAllHosts {
		return matching.BuildHostCoordinateIndex(allHosts)
	}
	return matching.BuildHostCoordinateIndex(availableHosts)
}

func (s *dashboardService) MapView(ctx context.Context, asOf time.Time, requirePaid *bool) (*MapView, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	day := s.evaluationDate(asOf)
	hosts := matching.FilterAvailableHosts(snap.Hosts, day)
	customers := s.opts.Policy.Actionable(snap.Customers, day, requirePaid)
	connections := matching.Connections(customers, s.hostIndex(snap.Hosts, hosts))

	s.log.Debug("Built map view", map[string]interface{}{
		"as_of":       models.FormatDate(&day),
		"hosts":       len(hosts),
		"customers":   len(customers),
		"connections": len(connections),
	})

	return &MapView{
		AsOf:        day,
		FetchedAt:   snap.FetchedAt,
		Hosts:       hosts,
		Customers:   customers,
		Connections: connections,
		Stale:       snap.Stale,
	}, nil
}

func (s *dashboardService) CheckinTable(ctx context.Context, asOf time.Time, host string) (*CheckinTable, error) {
	customers, err := s.ActionableCustomers(ctx, asOf, nil)
	if err != nil {
		return nil, err
	}

	if host == "" {
		host = matching.AllHosts
	}
	return &CheckinTable{
		Rows:  matching.CheckinRows(customers, host),
		Hosts: append([]string{matching.AllHosts}, matching.MatchedHostNames(customers)...),
		Host:  host,
	}, nil
}

func (s *dashboardService) SelectedCustomers(ctx context.Context, asOf time.Time, usernames []string) (*Selection, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	day := s.evaluationDate(asOf)
	customers := s.opts.Policy.Actionable(snap.Customers, day, nil)
	index := s.hostIndex(snap.Hosts, matching.FilterAvailableHosts(snap.Hosts, day))

	selection := &Selection{
		Customers:   []models.CustomerRecord{},
		Hosts:       []MatchedHost{},
		Connections: []matching.Connection{},
	}
	seenCustomer := make(map[string]struct{}, len(usernames))
	seenHost := make(map[string]struct{})

	for _, username := range usernames {
		if _, dup := seenCustomer[username]; dup {
			continue
		}
		seenCustomer[username] = struct{}{}

		customer, ok := firstCustomer(customers, username)
		if !ok {
			continue
		}
		selection.Customers = append(selection.Customers, customer)

		loc, ok := matching.ResolveMatch(customer, index)
		if !ok {
			continue
		}
		host := *customer.MatchedHost
		if _, dup := seenHost[host]; !dup {
			seenHost[host] = struct{}{}
			selection.Hosts = append(selection.Hosts, MatchedHost{Username: host, Location: loc})
		}
		selection.Connections = append(selection.Connections,
			matching.Connections([]models.CustomerRecord{customer}, index)...)
	}

	return selection, nil
}

func (s *dashboardService) CustomerMatch(ctx context.Context, asOf time.Time, username string) (*CustomerMatch, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	day := s.evaluationDate(asOf)
	customers := s.opts.Policy.Actionable(snap.Customers, day, nil)
	customer, ok := firstCustomer(customers, username)
	if !ok {
		return nil, s.notFound(customers, username)
	}

	result := &CustomerMatch{Customer: customer}
	index := s.hostIndex(snap.Hosts, matching.FilterAvailableHosts(snap.Hosts, day))
	if loc, ok := matching.ResolveMatch(customer, index); ok {
		result.Host = &MatchedHost{Username: *customer.MatchedHost, Location: loc}
	}
	return result, nil
}

func (s *dashboardService) NearbyHosts(ctx context.Context, asOf time.Time, username string, radiusMeters int) (*NearbyHosts, error) {
	if radiusMeters < MinRadiusMeters || radiusMeters > MaxRadiusMeters {
		s.log.Warn("Invalid radius provided", map[string]interface{}{
			"username": username,
			"radius":   radiusMeters,
		})
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRadius, radiusMeters)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	day := s.evaluationDate(asOf)
	customers := s.opts.Policy.Actionable(snap.Customers, day, nil)
	customer, ok := firstCustomer(customers, username)
	if !ok {
		return nil, s.notFound(customers, username)
	}
	center, ok := customer.Location()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNoLocation, username)
	}

	hosts := matching.UniqueHosts(matching.FilterAvailableHosts(snap.Hosts, day))
	return &NearbyHosts{
		Customer:     customer,
		Center:       center,
		RadiusMeters: radiusMeters,
		Hosts:        matching.HostsWithinRadius(hosts, center, float64(radiusMeters)),
	}, nil
}

func (s *dashboardService) HostAddresses(ctx context.Context, asOf time.Time) ([]HostAddress, error) {
	if s.resolver == nil {
		return nil, ErrGeocodingDisabled
	}

	hosts, err := s.AvailableHosts(ctx, asOf)
	if err != nil {
		return nil, err
	}
	hosts = matching.UniqueHosts(hosts)

	postalCodes := make([]string, 0, len(hosts))
	for _, h := range hosts {
		postalCodes = append(postalCodes, h.PostalCode)
	}
	addresses := s.resolver.Addresses(ctx, postalCodes)

	out := make([]HostAddress, 0, len(hosts))
	for _, h := range hosts {
		address, found := addresses[strings.TrimSpace(h.PostalCode)]
		out = append(out, HostAddress{
			Username:   h.Username,
			PostalCode: h.PostalCode,
			Address:    address,
			Found:      found,
		})
	}

	s.log.Info("Resolved host addresses", map[string]interface{}{
		"hosts":    len(out),
		"resolved": len(addresses),
	})
	return out, nil
}

func (s *dashboardService) notFound(customers []models.CustomerRecord, username string) error {
	err := &CustomerNotFoundError{
		Username:    username,
		Suggestions: suggestUsernames(customers, username, maxSuggestions),
	}
	s.log.Debug("Customer not found", map[string]interface{}{
		"username":    username,
		"suggestions": err.Suggestions,
	})
	return err
}

func firstCustomer(customers []models.CustomerRecord, username string) (models.CustomerRecord, bool) {
	for _, c := range customers {
		if c.Username == username {
			return c, true
		}
	}
	return models.CustomerRecord{}, false
}

// suggestUsernames returns up to limit distinct usernames closest to target by edit distance.
// Candidates further than half the target's length are dropped.
func suggestUsernames(customers []models.CustomerRecord, target string, limit int) []string {
	type candidate struct {
		name     string
		distance int
	}

	maxDistance := len(target)/2 + 1
	target = strings.ToLower(target)

	seen := make(map[string]struct{})
	candidates := make([]candidate, 0)
	for _, c := range customers {
		if _, dup := seen[c.Username]; dup || c.Username == "" {
			continue
		}
		seen[c.Username] = struct{}{}

		d := levenshtein.ComputeDistance(target, strings.ToLower(c.Username))
		if d <= maxDistance {
			candidates = append(candidates, candidate{name: c.Username, distance: d})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].name < candidates[j].name
	})

	out := make([]string, 0, limit)
	for i := 0; i < len(candidates) && i < limit; i++ {
		out = append(out, candidates[i].name)
	}
	return out
}
