package matching

import (
	"testing"
	"time"

	"github.com/storeit/dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func date(s string) *time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

var asOf = *date("2025-01-01")

func host(username, end string) models.HostRecord {
	h := models.HostRecord{
		Username:  username,
		Latitude:  ptr(1.3),
		Longitude: ptr(103.8),
	}
	if end != "" {
		h.AvailableEnd = date(end)
	}
	return h
}

func customer(username string, stage models.Stage, end string, paid bool, matched *string) models.CustomerRecord {
	c := models.CustomerRecord{
		Username:    username,
		Latitude:    ptr(1.31),
		Longitude:   ptr(103.81),
		Stage:       stage,
		HasPaid:     paid,
		MatchedHost: matched,
	}
	if end != "" {
		c.EndDate = date(end)
	}
	return c
}

func usernamesOfHosts(hosts []models.HostRecord) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.Username)
	}
	return out
}

func usernamesOfCustomers(customers []models.CustomerRecord) []string {
	out := make([]string, 0, len(customers))
	for _, c := range customers {
		out = append(out, c.Username)
	}
	return out
}

func TestFilterAvailableHosts_Examples(t *testing.T) {
	hosts := []models.HostRecord{
		host("H1", "2099-01-01"),
		host("H2", "2020-01-01"),
	}

	got := FilterAvailableHosts(hosts, asOf)

	assert.Equal(t, []string{"H1"}, usernamesOfHosts(got))
}

func TestFilterAvailableHosts(t *testing.T) {
	noLat := host("no-lat", "2099-01-01")
	noLat.Latitude = nil
	noLng := host("no-lng", "2099-01-01")
	noLng.Longitude = nil

	tests := []struct {
		name string
		host models.HostRecord
		want bool
	}{
		{name: "ends in the future", host: host("a", "2030-06-01"), want: true},
		{name: "ends on the evaluation date", host: host("b", "2025-01-01"), want: true},
		{name: "ended the day before", host: host("c", "2024-12-31"), want: false},
		{name: "missing end date", host: host("d", ""), want: false},
		{name: "missing latitude", host: noLat, want: false},
		{name: "missing longitude", host: noLng, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterAvailableHosts([]models.HostRecord{tt.host}, asOf)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestFilterAvailableHosts_NormalizesAsOf(t *testing.T) {
	// Late in the day still counts as the same evaluation date.
	lateAsOf := time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC)
	got := FilterAvailableHosts([]models.HostRecord{host("H1", "2025-01-01")}, lateAsOf)
	assert.Len(t, got, 1)
}

func TestFilterAvailableHosts_PreservesOrderAndInput(t *testing.T) {
	hosts := []models.HostRecord{
		host("z", "2099-01-01"),
		host("old", "2000-01-01"),
		host("a", "2099-01-01"),
		host("m", "2099-01-01"),
	}
	before := usernamesOfHosts(hosts)

	got := FilterAvailableHosts(hosts, asOf)

	assert.Equal(t, []string{"z", "a", "m"}, usernamesOfHosts(got))
	assert.Equal(t, before, usernamesOfHosts(hosts), "input must not be modified")
}

func TestFilterActionableCustomers_Examples(t *testing.T) {
	paid := customer("C1", 2, "2099-01-01", true, ptr("H1"))
	unpaid := customer("C1", 2, "2099-01-01", false, ptr("H1"))

	assert.Len(t, FilterActionableCustomers([]models.CustomerRecord{paid}, asOf, true), 1)
	assert.Empty(t, FilterActionableCustomers([]models.CustomerRecord{unpaid}, asOf, true))
	assert.Len(t, FilterActionableCustomers([]models.CustomerRecord{unpaid}, asOf, false), 1)
}

func TestFilterActionableCustomers(t *testing.T) {
	noCoords := customer("no-coords", 3, "2099-01-01", true, nil)
	noCoords.Latitude = nil

	tests := []struct {
		name        string
		customer    models.CustomerRecord
		requirePaid bool
		want        bool
	}{
		{name: "stage 2 future end", customer: customer("a", 2, "2099-01-01", false, nil), want: true},
		{name: "stage 4 future end", customer: customer("b", 4, "2099-01-01", false, nil), want: true},
		{name: "stage 1 excluded", customer: customer("c", 1, "2099-01-01", true, ptr("H1")), want: false},
		{name: "unknown stage excluded", customer: customer("d", models.StageUnknown, "2099-01-01", true, nil), want: false},
		{name: "end equal to as_of excluded", customer: customer("e", 2, "2025-01-01", true, nil), want: false},
		{name: "end in the past excluded", customer: customer("f", 2, "2024-06-01", true, nil), want: false},
		{name: "missing end excluded", customer: customer("g", 2, "", true, nil), want: false},
		{name: "missing coordinates excluded", customer: noCoords, want: false},
		{name: "paid required and paid", customer: customer("h", 3, "2099-01-01", true, nil), requirePaid: true, want: true},
		{name: "paid required but unpaid", customer: customer("i", 3, "2099-01-01", false, nil), requirePaid: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterActionableCustomers([]models.CustomerRecord{tt.customer}, asOf, tt.requirePaid)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestFilterPendingCustomers(t *testing.T) {
	noCoords := customer("no-coords", 0, "2099-01-01", false, ptr("H1"))
	noCoords.Longitude = nil

	tests := []struct {
		name     string
		customer models.CustomerRecord
		want     bool
	}{
		{name: "stage 0 matched", customer: customer("a", 0, "2099-01-01", false, ptr("H1")), want: true},
		{name: "stage 1 matched", customer: customer("b", 1, "2099-01-01", false, ptr("H1")), want: true},
		{name: "stage 2 excluded", customer: customer("c", 2, "2099-01-01", false, ptr("H1")), want: false},
		{name: "no match excluded", customer: customer("d", 0, "2099-01-01", false, nil), want: false},
		{name: "empty match excluded", customer: customer("e", 1, "2099-01-01", false, ptr("")), want: false},
		{name: "expired excluded", customer: customer("f", 0, "2024-01-01", false, ptr("H1")), want: false},
		{name: "missing end excluded", customer: customer("g", 0, "", false, ptr("H1")), want: false},
		{name: "missing coordinates excluded", customer: noCoords, want: false},
		{name: "unknown stage excluded", customer: customer("h", models.StageUnknown, "2099-01-01", false, ptr("H1")), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterPendingCustomers([]models.CustomerRecord{tt.customer}, asOf)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestClassifyCustomerStatus(t *testing.T) {
	expected := map[int]string{
		0: "Awaiting Host Acceptance",
		1: "Awaiting Customer Transaction",
		2: "Transaction Succeeded",
		3: "In Storage Process",
		4: "Completed Deal",
	}
	for stage, label := range expected {
		assert.Equal(t, label, ClassifyCustomerStatus(stage))
	}

	for _, stage := range []int{-1, 5, 99, -1000, 1 << 30} {
		assert.Equal(t, "Unknown", ClassifyCustomerStatus(stage), "stage %d", stage)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, DefaultActionableMinStage, p.ActionableMinStage)
	assert.False(t, p.RequirePaid)
	assert.Equal(t, []models.Stage{0, 1}, p.PendingStages)

	// Mutating the returned policy must not leak into the package default.
	p.PendingStages[0] = 4
	assert.Equal(t, models.Stage(0), DefaultPendingStages[0])
}

func TestPolicy_Actionable(t *testing.T) {
	customers := []models.CustomerRecord{
		customer("s1-paid", 1, "2099-01-01", true, nil),
		customer("s2-unpaid", 2, "2099-01-01", false, nil),
		customer("s3-paid", 3, "2099-01-01", true, nil),
	}

	t.Run("policy requires paid", func(t *testing.T) {
		p := DefaultPolicy()
		p.RequirePaid = true
		got := p.Actionable(customers, asOf, nil)
		assert.Equal(t, []string{"s3-paid"}, usernamesOfCustomers(got))
	})

	t.Run("explicit override wins", func(t *testing.T) {
		p := DefaultPolicy()
		p.RequirePaid = true
		got := p.Actionable(customers, asOf, ptr(false))
		assert.Equal(t, []string{"s2-unpaid", "s3-paid"}, usernamesOfCustomers(got))
	})

	t.Run("lower stage threshold", func(t *testing.T) {
		p := DefaultPolicy()
		p.ActionableMinStage = 1
		got := p.Actionable(customers, asOf, nil)
		assert.Equal(t, []string{"s1-paid", "s2-unpaid", "s3-paid"}, usernamesOfCustomers(got))
	})
}

func TestPolicy_Pending(t *testing.T) {
	customers := []models.CustomerRecord{
		customer("s0", 0, "2099-01-01", false, ptr("H1")),
		customer("s1", 1, "2099-01-01", false, ptr("H1")),
	}

	p := DefaultPolicy()
	p.PendingStages = []models.Stage{1}
	assert.Equal(t, []string{"s1"}, usernamesOfCustomers(p.Pending(customers, asOf)))

	p.PendingStages = nil
	assert.Equal(t, []string{"s0", "s1"}, usernamesOfCustomers(p.Pending(customers, asOf)))
}
