package core

import "benchcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
// The rules re-check at commit what the operations already enforce, so a
// faulty operation cannot commit state that breaks an invariant.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewStockBoundsRule())
	engine.Register(NewLifecycleTransitionRule())
	engine.Register(NewOpenTaskUniqueRule())
	engine.Register(NewValidationScheduleRule())
	engine.Register(NewEquipmentParametersRule())
	return engine
}

func decodeChangePayload[T any](payload domain.ChangePayload) (T, bool) {
	return domain.DecodePayload[T](payload)
}
