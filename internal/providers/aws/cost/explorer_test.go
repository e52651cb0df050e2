package cost

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// fakeCE returns canned pages of GetCostAndUsage output.
type fakeCE struct {
	pages []*ce.GetCostAndUsageOutput
	calls int
}

func (f *fakeCE) GetCostAndUsage(_ context.Context, _ *ce.GetCostAndUsageInput, _ ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error) {
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func serviceGroup(service, amount string) cetypes.Group {
	return cetypes.Group{
		Keys: []string{service},
		Metrics: map[string]cetypes.MetricValue{
			"UnblendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")},
		},
	}
}

func dayResult(start string, groups ...cetypes.Group) cetypes.ResultByTime {
	return cetypes.ResultByTime{
		TimePeriod: &cetypes.DateInterval{Start: aws.String(start)},
		Groups:     groups,
	}
}

func TestServiceCosts(t *testing.T) {
	fake := &fakeCE{pages: []*ce.GetCostAndUsageOutput{{
		ResultsByTime: []cetypes.ResultByTime{
			dayResult("2025-08-15",
				serviceGroup("AmazonEC2", "120.50"),
				serviceGroup("AmazonS3", "30.25"),
				serviceGroup("AWSLambda", "0.0000000000"),
			),
		},
	}}}

	day, err := NewExplorer(fake).ServiceCosts(context.Background(), "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if day.Date != "2025-08-15" {
		t.Errorf("Date = %q; want 2025-08-15", day.Date)
	}
	if len(day.ByService) != 2 {
		t.Errorf("ByService = %v; want zero-cost services dropped", day.ByService)
	}
	if day.ByService["AmazonEC2"] != 120.50 {
		t.Errorf("AmazonEC2 = %v; want 120.50", day.ByService["AmazonEC2"])
	}
	if day.Total != 150.75 {
		t.Errorf("Total = %v; want 150.75", day.Total)
	}
}

func TestServiceCosts_NoData(t *testing.T) {
	fake := &fakeCE{pages: []*ce.GetCostAndUsageOutput{{}}}

	day, err := NewExplorer(fake).ServiceCosts(context.Background(), "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if len(day.ByService) != 0 || day.Total != 0 {
		t.Errorf("day = %+v; want empty costs when the API has no data", day)
	}
}

func TestRange_FollowsPagination(t *testing.T) {
	fake := &fakeCE{pages: []*ce.GetCostAndUsageOutput{
		{
			ResultsByTime: []cetypes.ResultByTime{
				dayResult("2025-08-14", serviceGroup("AmazonEC2", "100")),
			},
			NextPageToken: aws.String("page-2"),
		},
		{
			ResultsByTime: []cetypes.ResultByTime{
				dayResult("2025-08-14", serviceGroup("AmazonRDS", "50")),
				dayResult("2025-08-15", serviceGroup("AmazonEC2", "110")),
			},
		},
	}}

	days, err := NewExplorer(fake).Range(context.Background(), "2025-08-14", "2025-08-16")
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d; want both pages fetched", fake.calls)
	}
	if len(days) != 2 {
		t.Fatalf("days = %+v; want 2 entries", days)
	}
	if days[0].Date != "2025-08-14" || days[0].Total != 150 {
		t.Errorf("day[0] = %+v; want 2025-08-14 merged across pages", days[0])
	}
	if days[1].Date != "2025-08-15" || days[1].Total != 110 {
		t.Errorf("day[1] = %+v; want 2025-08-15 total 110", days[1])
	}
}

func TestMonthToDate(t *testing.T) {
	fake := &fakeCE{pages: []*ce.GetCostAndUsageOutput{{
		ResultsByTime: []cetypes.ResultByTime{{
			Total: map[string]cetypes.MetricValue{
				"UnblendedCost": {Amount: aws.String("432.10"), Unit: aws.String("USD")},
			},
		}},
	}}}

	total, err := NewExplorer(fake).MonthToDate(context.Background(), "2025-08-15")
	if err != nil {
		t.Fatal(err)
	}
	if total != 432.10 {
		t.Errorf("total = %v; want 432.10", total)
	}
}

func TestParseCostFloat(t *testing.T) {
	if got := parseCostFloat(nil); got != 0 {
		t.Errorf("nil amount = %v; want 0", got)
	}
	if got := parseCostFloat(aws.String("not-a-number")); got != 0 {
		t.Errorf("malformed amount = %v; want 0", got)
	}
	if got := parseCostFloat(aws.String("12.34")); got != 12.34 {
		t.Errorf("amount = %v; want 12.34", got)
	}
}
