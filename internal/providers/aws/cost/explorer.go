package cost

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/costguard/costguard/internal/providers/aws/common"
)

// Explorer is the production Source backed by Cost Explorer GetCostAndUsage.
type Explorer struct {
	client common.CostExplorerClient
}

// NewExplorer returns a Source using client.
func NewExplorer(client common.CostExplorerClient) *Explorer {
	return &Explorer{client: client}
}

func (e *Explorer) ServiceCosts(ctx context.Context, date string) (*DailyCosts, error) {
	end, err := nextDay(date)
	if err != nil {
		return nil, err
	}
	days, err := e.Range(ctx, date, end)
	if err != nil {
		return nil, err
	}
	for i := range days {
		if days[i].Date == date {
			return &days[i], nil
		}
	}
	// Cost Explorer has no data for the day yet.
	return &DailyCosts{Date: date, ByService: map[string]float64{}}, nil
}

// Range calls GetCostAndUsage with DAILY granularity grouped by service and
// follows pagination until the window is exhausted.
func (e *Explorer) Range(ctx context.Context, start, end string) ([]DailyCosts, error) {
	byDate := make(map[string]*DailyCosts)

	var nextToken *string
	for {
		out, err := e.client.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(start),
				End:   aws.String(end),
			},
			Granularity: cetypes.GranularityDaily,
			Metrics:     []string{"UnblendedCost"},
			GroupBy: []cetypes.GroupDefinition{
				{
					Key:  aws.String("SERVICE"),
					Type: cetypes.GroupDefinitionTypeDimension,
				},
			},
			NextPageToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCostAndUsage [%s, %s): %w", start, end, err)
		}

		for _, result := range out.ResultsByTime {
			if result.TimePeriod == nil || result.TimePeriod.Start == nil {
				continue
			}
			date := aws.ToString(result.TimePeriod.Start)
			day, ok := byDate[date]
			if !ok {
				day = &DailyCosts{Date: date, ByService: make(map[string]float64)}
				byDate[date] = day
			}
			for _, group := range result.Groups {
				if len(group.Keys) == 0 {
					continue
				}
				metric, ok := group.Metrics["UnblendedCost"]
				if !ok {
					continue
				}
				cost := parseCostFloat(metric.Amount)
				if cost <= 0 {
					continue
				}
				day.ByService[group.Keys[0]] += cost
				day.Total += cost
			}
		}

		if out.NextPageToken == nil {
			break
		}
		nextToken = out.NextPageToken
	}

	days := make([]DailyCosts, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// MonthToDate sums unblended cost from the first of date's month through
// date inclusive, using a single MONTHLY-granularity call.
func (e *Explorer) MonthToDate(ctx context.Context, date string) (float64, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	end, err := nextDay(date)
	if err != nil {
		return 0, err
	}

	var total float64
	var nextToken *string
	for {
		out, err := e.client.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(start),
				End:   aws.String(end),
			},
			Granularity:   cetypes.GranularityMonthly,
			Metrics:       []string{"UnblendedCost"},
			NextPageToken: nextToken,
		})
		if err != nil {
			return 0, fmt.Errorf("GetCostAndUsage month-to-date: %w", err)
		}

		for _, result := range out.ResultsByTime {
			if result.Total == nil {
				continue
			}
			if metric, ok := result.Total["UnblendedCost"]; ok {
				total += parseCostFloat(metric.Amount)
			}
		}

		if out.NextPageToken == nil {
			break
		}
		nextToken = out.NextPageToken
	}
	return total, nil
}

// parseCostFloat converts a Cost Explorer amount string to float64.
// Malformed or nil amounts are treated as zero rather than failing the whole
// collection.
func parseCostFloat(amount *string) float64 {
	if amount == nil {
		return 0
	}
	v, err := strconv.ParseFloat(*amount, 64)
	if err != nil {
		return 0
	}
	return v
}

func nextDay(date string) (string, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return day.AddDate(0, 0, 1).Format("2006-01-02"), nil
}

var _ Source = (*Explorer)(nil)
