package storage

import (
	"context"
	"fmt"

	"github.com/benchbook/benchbook/internal/model"
)

// TemplateBody is the bundled Q5 site-directed mutagenesis protocol used
// to seed fresh installs so a new deployment has something to run.
const TemplateBody = `<h2>Q5 Site-Directed Mutagenesis</h2>
<p>Exponential amplification followed by KLD treatment and transformation.</p>
<ul data-type="taskList">
  <li data-type="taskItem">Assemble the exponential amplification reaction on ice:
    <span data-entry-node="component" label="Q5 Hot Start Master Mix" unit="µL" value="12.5"></span>
    <span data-entry-node="component" label="Forward primer (10 µM)" unit="µL" value="1.25"></span>
    <span data-entry-node="component" label="Reverse primer (10 µM)" unit="µL" value="1.25"></span>
    <span data-entry-node="component" label="Template DNA (1-25 ng/µL)" unit="µL" value="1"></span>
    <span data-entry-node="component" label="Nuclease-free water" unit="µL" value="9"></span>
  </li>
  <li data-type="taskItem">Run the thermocycler program (98 °C denature, 25 cycles).
    <span data-entry-node="timer" label="Thermocycling" seconds="5400" mode="longrange"></span>
  </li>
  <li data-type="taskItem">Assemble the KLD reaction:
    <span data-entry-node="component" label="PCR product" unit="µL" value="1"></span>
    <span data-entry-node="component" label="KLD reaction buffer (2X)" unit="µL" value="5"></span>
    <span data-entry-node="component" label="KLD enzyme mix (10X)" unit="µL" value="1"></span>
    <span data-entry-node="component" label="Nuclease-free water" unit="µL" value="3"></span>
  </li>
  <li data-type="taskItem">Incubate the KLD reaction at room temperature.
    <span data-entry-node="timer" label="KLD incubation" seconds="300" mode="countdown"></span>
  </li>
  <li data-type="taskItem">Transform 5 µL into competent cells and heat shock.
    <span data-entry-node="timer" label="Heat shock" seconds="30" mode="countdown"></span>
  </li>
  <li data-type="taskItem">Record the outgrowth and plating details.</li>
</ul>
<p>Observed A260/A280: <span data-entry-node="measurement" label="A260/A280" value=""></span></p>
<p>Colony count: <span data-entry-node="measurement" label="Colonies" unit="cfu" value=""></span></p>`

// SeedTemplate inserts the bundled template protocol unless an entry with
// its title already exists. Called at startup for both backends, so it
// must stay idempotent.
func SeedTemplate(ctx context.Context, store Store) (model.Entry, error) {
	const title = "Q5 Site-Directed Mutagenesis"

	entries, _, err := store.ListEntries(ctx, 100, 0)
	if err != nil {
		return model.Entry{}, fmt.Errorf("storage: list entries for seed: %w", err)
	}
	for _, e := range entries {
		if e.Title == title {
			return e, nil
		}
	}

	return store.CreateEntry(ctx, model.Entry{
		Title:       title,
		Description: "Introduce a point mutation with the Q5 kit: amplify, KLD-treat, transform.",
		Technique:   "Molecular cloning",
		Body:        TemplateBody,
	})
}
