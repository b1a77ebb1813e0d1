package saga

// PlanEntry describes one step of a dry-run plan.
type PlanEntry struct {
	Step         StepName `json:"step"`
	Description  string   `json:"description,omitempty"`
	InGroup      bool     `json:"inGroup,omitempty"`
	SkipOnDryRun bool     `json:"skipOnDryRun,omitempty"`
}

// Plan returns the definition's steps flattened in declaration order,
// annotated with their metadata. It invokes no step, hook, or store call.
func (d *Definition) Plan() []PlanEntry {
	var plan []PlanEntry
	for _, entry := range d.entries {
		group := entry.IsGroup()
		for _, step := range entry.steps() {
			meta := step.Metadata()
			plan = append(plan, PlanEntry{
				Step:         step.Name(),
				Description:  meta.Description,
				InGroup:      group,
				SkipOnDryRun: meta.SkipOnDryRun,
			})
		}
	}
	return plan
}
