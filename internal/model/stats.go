package model

// Stats агрегированные счетчики для админки и ежедневного отчета
type Stats struct {
	TotalUsers    int
	TotalPayments int
	ActiveUsers   int
	ByStatus      map[SubscriptionStatus]int
	ByPlan        map[PlanKey]int

	// За текущие сутки
	NewUsersToday    int
	NewPaymentsToday int
	ExpiredToday     int
}
