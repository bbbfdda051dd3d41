package model

import "time"

// PlanKey идентификатор тарифа
type PlanKey string

const (
	PlanNone     PlanKey = ""
	PlanMonth    PlanKey = "1m"
	PlanQuarter  PlanKey = "3m"
	PlanLifetime PlanKey = "lifetime"
)

// Plan тариф подписки. Days == 0 означает бессрочный тариф.
type Plan struct {
	Key   PlanKey
	Name  string
	Price int
	Days  int
}

// Unbounded сообщает, что у тарифа нет даты окончания
func (p Plan) Unbounded() bool {
	return p.Days == 0
}

// EndDate вычисляет дату окончания подписки, начатой в start
func (p Plan) EndDate(start time.Time) *time.Time {
	if p.Unbounded() {
		return nil
	}
	end := start.AddDate(0, 0, p.Days)
	return &end
}

var plans = []Plan{
	{Key: PlanMonth, Name: "1 месяц", Price: 39, Days: 30},
	{Key: PlanQuarter, Name: "3 месяца", Price: 99, Days: 90},
	{Key: PlanLifetime, Name: "Пожизненно", Price: 239},
}

// Plans возвращает каталог тарифов в порядке отображения
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// LookupPlan ищет тариф по ключу
func LookupPlan(key PlanKey) (Plan, bool) {
	for _, p := range plans {
		if p.Key == key {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanName возвращает название тарифа или fallback для неизвестного ключа
func PlanName(key PlanKey, fallback string) string {
	if p, ok := LookupPlan(key); ok {
		return p.Name
	}
	return fallback
}
