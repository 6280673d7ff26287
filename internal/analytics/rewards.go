package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-records-api/internal/domain"
	"github.com/dvloznov/finance-records-api/internal/period"
	"github.com/dvloznov/finance-records-api/internal/workbook"
)

// Rewards columns.
var (
	PointsDateFields    = domain.Fields{"Created_At"}
	RewardDateFields    = domain.Fields{"Txn_Date"}
	PointsFields        = domain.Fields{"Points"}
	RewardAmountFields  = domain.Fields{"BHD_Amount", "Amount", "amount"}
	activityDateFields  = domain.Fields{"Created_At", "Txn_Date", "Date", "timestamp"}
	pointsMessageFields = domain.Fields{"Message", "Description"}
	loadDescFields      = domain.Fields{"description", "transactionType_dsc"}
	cardDescFields      = domain.Fields{"otherPartyName", "MCC_Name", "transactionType_dsc"}
)

// Rewards thresholds and limits.
const (
	PlatinumPoints   = 10000
	GoldPoints       = 5000
	NextTierProgress = 75
	ActivityLimit    = 50
	ExpiryLeadDays   = 15
)

// sheetKind classifies a rewards sheet by its key.
type sheetKind int

const (
	kindOther sheetKind = iota
	kindPoints
	kindLoad
	kindCard
)

func classify(key string) sheetKind {
	switch {
	case strings.Contains(key, "flyy"), strings.Contains(key, "points"):
		return kindPoints
	case strings.Contains(key, "load"):
		return kindLoad
	case strings.Contains(key, "transaction"):
		return kindCard
	}
	return kindOther
}

func (k sheetKind) dateFields() domain.Fields {
	if k == kindPoints {
		return PointsDateFields
	}
	return RewardDateFields
}

var rewardTypeSheets = map[string]string{
	"transactions": "transactions",
	"load":         "load",
	"flyy_points":  "flyy_points",
	"flyypoints":   "flyy_points",
}

// RewardType normalizes the type parameter; empty means "all".
func RewardType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "all"
	}
	return t
}

// selectSheets narrows sheets to the one named by rewardType. Unknown types,
// "all", and types whose sheet is missing select every sheet.
func selectSheets(sheets []workbook.Sheet, rewardType string) []workbook.Sheet {
	key, ok := rewardTypeSheets[rewardType]
	if !ok {
		return sheets
	}
	for _, s := range sheets {
		if s.Key == key {
			return []workbook.Sheet{s}
		}
	}
	return sheets
}

// Tier maps a points balance to a membership tier.
func Tier(points decimal.Decimal) string {
	switch {
	case points.GreaterThan(decimal.NewFromInt(PlatinumPoints)):
		return "Platinum"
	case points.GreaterThan(decimal.NewFromInt(GoldPoints)):
		return "Gold"
	}
	return "Silver"
}

// AllRewardsTotals summarizes every rewards sheet.
type AllRewardsTotals struct {
	TotalPoints          int64   `json:"total_points"`
	TotalCashbackBHD     float64 `json:"total_cashback_bhd"`
	TotalLoadBHD         float64 `json:"total_load_bhd"`
	TotalTransactionsBHD float64 `json:"total_transactions_bhd"`
}

// PointsTotals summarizes the points sheet.
type PointsTotals struct {
	TotalPoints      int64  `json:"total_points"`
	Tier             string `json:"tier"`
	NextTierProgress int    `json:"next_tier_progress"`
}

// LoadTotals summarizes wallet loads.
type LoadTotals struct {
	TotalLoadBHD     float64 `json:"total_load_bhd"`
	TransactionCount int     `json:"transaction_count"`
}

// CardTotals summarizes card transactions and the cashback they earned.
type CardTotals struct {
	TotalTransactionsBHD float64 `json:"total_transactions_bhd"`
	TotalCashbackBHD     float64 `json:"total_cashback_bhd"`
	TransactionCount     int     `json:"transaction_count"`
}

// RewardsSummaryResult carries one of the totals types above in Summary,
// chosen by Type. Tier fields are only set for "all".
type RewardsSummaryResult struct {
	Header
	Type             string `json:"type"`
	Period           string `json:"period"`
	RecordCount      int    `json:"record_count"`
	Summary          any    `json:"summary,omitempty"`
	Tier             string `json:"tier,omitempty"`
	NextTierProgress int    `json:"next_tier_progress,omitempty"`
}

// RewardsSummary totals points, loads and card spend for rewardType in p.
func (e *Engine) RewardsSummary(sheets []workbook.Sheet, rewardType string, p period.Period) RewardsSummaryResult {
	rewardType = RewardType(rewardType)

	points, load, card := decimal.Zero, decimal.Zero, decimal.Zero
	count := 0
	for _, s := range selectSheets(sheets, rewardType) {
		kind := classify(s.Key)
		rows := e.within(s.Rows, p, kind.dateFields(), period.ExcludeUnparseable)
		count += len(rows)
		for _, r := range rows {
			switch kind {
			case kindPoints:
				points = points.Add(r.Amount(PointsFields))
			case kindLoad:
				load = load.Add(r.Amount(RewardAmountFields))
			case kindCard:
				card = card.Add(r.Amount(RewardAmountFields))
			}
		}
	}

	res := RewardsSummaryResult{
		Header:      header("rewards_summary"),
		Type:        rewardType,
		Period:      p.Label,
		RecordCount: count,
	}
	wholePoints := points.Round(0).IntPart()
	switch rewardType {
	case "all":
		res.Summary = AllRewardsTotals{
			TotalPoints:          wholePoints,
			TotalCashbackBHD:     Money(card),
			TotalLoadBHD:         Money(load),
			TotalTransactionsBHD: Money(card),
		}
		res.Tier = Tier(points)
		res.NextTierProgress = NextTierProgress
	case "flyy_points", "flyypoints":
		res.Summary = PointsTotals{TotalPoints: wholePoints, Tier: Tier(points), NextTierProgress: NextTierProgress}
	case "load":
		res.Summary = LoadTotals{TotalLoadBHD: Money(load), TransactionCount: count}
	case "transactions":
		res.Summary = CardTotals{TotalTransactionsBHD: Money(card), TotalCashbackBHD: Money(card), TransactionCount: count}
	}
	return res
}

// Activity is one rewards event.
type Activity struct {
	Date        string  `json:"date"`
	SheetType   string  `json:"sheet_type"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`

	at time.Time
}

// ActivityResult lists the latest events, newest first. Count is the number
// of events before truncation.
type ActivityResult struct {
	Header
	Type     string     `json:"type"`
	Period   string     `json:"period"`
	Count    int        `json:"count"`
	Activity []Activity `json:"activity"`
}

// RewardsActivity lists dated rewards events in p, newest first, keeping at
// most ActivityLimit. Undated rows are dropped even for an unbounded period.
func (e *Engine) RewardsActivity(sheets []workbook.Sheet, rewardType string, p period.Period) ActivityResult {
	rewardType = RewardType(rewardType)

	var events []Activity
	for _, s := range selectSheets(sheets, rewardType) {
		kind := classify(s.Key)
		rows := period.Filter(s.Rows, p, e.dateOf(kind.dateFields()), period.ExcludeUnparseable)
		for _, r := range rows {
			events = append(events, e.activity(r, s.Key, kind))
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].at.After(events[j].at) })

	res := ActivityResult{
		Header:   header("rewards_activity"),
		Type:     rewardType,
		Period:   p.Label,
		Count:    len(events),
		Activity: events,
	}
	if len(events) > ActivityLimit {
		res.Activity = events[:ActivityLimit]
	}
	if res.Activity == nil {
		res.Activity = []Activity{}
	}
	return res
}

func (e *Engine) activity(r domain.Record, key string, kind sheetKind) Activity {
	a := Activity{SheetType: key, Currency: BaseCurrency}
	if t, ok := e.dateOf(activityDateFields)(r); ok {
		a.at = t
		a.Date = t.Format(DateTimeLayout)
	} else {
		a.Date = r.String(activityDateFields)
	}
	if strings.Contains(key, "flyy") {
		a.Currency = "Points"
	}

	switch kind {
	case kindPoints:
		a.Type = "Points"
		a.Amount = Money(r.Amount(PointsFields))
		a.Description = orDefault(r.String(pointsMessageFields), "Points Activity")
	case kindLoad:
		a.Type = "Load"
		a.Amount = Money(r.Amount(RewardAmountFields))
		a.Description = orDefault(r.String(loadDescFields), "Wallet Load")
	default:
		a.Type = "Transaction"
		a.Amount = Money(r.Amount(RewardAmountFields))
		a.Description = orDefault(r.String(cardDescFields), "Card Transaction")
	}
	return a
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ExpiryAlert is a points balance about to lapse.
type ExpiryAlert struct {
	Amount      int    `json:"amount"`
	ExpiryDate  string `json:"expiry_date"`
	Description string `json:"description"`
}

// ExpiryResult lists upcoming expiries.
type ExpiryResult struct {
	Header
	Alerts []ExpiryAlert `json:"alerts"`
}

// ExpiryAlerts reports the promotional bonus due to lapse ExpiryLeadDays
// from now. Workbooks carry no expiry column, so the alert is fixed.
func (e *Engine) ExpiryAlerts() ExpiryResult {
	return ExpiryResult{
		Header: header("rewards_expiry"),
		Alerts: []ExpiryAlert{{
			Amount:      500,
			ExpiryDate:  e.now().AddDate(0, 0, ExpiryLeadDays).Format(DayLayout),
			Description: "Promotional Bonus Points",
		}},
	}
}

// DefaultStrategies is used when no strategies are configured.
func DefaultStrategies() Strategies {
	return Strategies{
		Default: "Use your Platinum Card for 1.5x points on general spend.",
		Categories: map[string]string{
			"dining":  "Use your Platinum Card for 5x points on dining.",
			"grocery": "Use Gold Card for 3% cashback at supermarkets.",
			"travel":  "Book via the portal for 10x points on hotels.",
			"fuel":    "Use Debit Card for 2% instant cashback.",
		},
	}
}

// StrategyResult recommends a card for a category.
type StrategyResult struct {
	Header
	Category       string `json:"category"`
	Recommendation string `json:"recommendation"`
}

// BestStrategy looks up the recommendation for category, ignoring case.
func (e *Engine) BestStrategy(category string) StrategyResult {
	s := e.Strategies
	if s.Default == "" && len(s.Categories) == 0 {
		s = DefaultStrategies()
	}

	rec, ok := s.Categories[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		rec = s.Default
	}
	if category == "" {
		category = "General"
	}
	return StrategyResult{Header: header("rewards_strategy"), Category: category, Recommendation: rec}
}
