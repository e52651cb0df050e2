// Package budgets resolves the account's monthly cost budget from AWS
// Budgets, falling back to the configured amount when none is defined.
package budgets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbudgets "github.com/aws/aws-sdk-go-v2/service/budgets"
	budgetstypes "github.com/aws/aws-sdk-go-v2/service/budgets/types"

	"github.com/costguard/costguard/internal/providers/aws/common"
)

// Collector reads budget definitions for one account.
type Collector struct {
	client common.BudgetsClient
}

// NewCollector returns a Collector using client.
func NewCollector(client common.BudgetsClient) *Collector {
	return &Collector{client: client}
}

// MonthlyBudget returns the limit of the account's first monthly cost budget
// in USD, following pagination. Returns 0 when the account defines none;
// callers fall back to the configured amount.
func (c *Collector) MonthlyBudget(ctx context.Context, accountID string) (float64, error) {
	var nextToken *string
	for {
		out, err := c.client.DescribeBudgets(ctx, &awsbudgets.DescribeBudgetsInput{
			AccountId: aws.String(accountID),
			NextToken: nextToken,
		})
		if err != nil {
			return 0, fmt.Errorf("DescribeBudgets: %w", err)
		}

		for _, b := range out.Budgets {
			if b.BudgetType != budgetstypes.BudgetTypeCost || b.TimeUnit != budgetstypes.TimeUnitMonthly {
				continue
			}
			if b.BudgetLimit == nil || b.BudgetLimit.Amount == nil {
				continue
			}
			limit, err := strconv.ParseFloat(*b.BudgetLimit.Amount, 64)
			if err != nil {
				continue
			}
			return limit, nil
		}

		if out.NextToken == nil {
			return 0, nil
		}
		nextToken = out.NextToken
	}
}
