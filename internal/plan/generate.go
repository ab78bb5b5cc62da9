package plan

import "github.com/fentz26/bioreactor/internal/models"

// Generate returns a plan for prompt. There is no planner behind it yet: every
// prompt gets the same agitation/aeration ramp.
func Generate(prompt string) models.PlanSpec {
	wait := 10
	return models.PlanSpec{
		Steps: []models.StepSpec{
			{Type: models.StepTypeRead, Parameters: []string{"DO", "Temp"}},
			{Type: models.StepTypeWrite, Values: map[string]float64{"Agit": 400, "Air": 1.5}},
			{Type: models.StepTypeWait, Seconds: &wait},
			{Type: models.StepTypeWrite, Values: map[string]float64{"Agit": 350, "Air": 1.0}},
		},
		AllowOnSuccess: true,
		Note:           "This is a mock plan to ramp up agitation and aeration temporarily.",
	}
}
