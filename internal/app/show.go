package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the most recent observations with the change from the preceding entry.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	observations, err := a.historyStore().Load(ctx)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(a.out, "no observations found")
		return nil
	}

	start := 0
	if opts.Limit > 0 && len(observations) > opts.Limit {
		start = len(observations) - opts.Limit
	}

	writer := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tChange%")

	for i := start; i < len(observations); i++ {
		obs := observations[i]
		change := "-"
		if i > 0 && observations[i-1].Price != 0 {
			prev := observations[i-1].Price
			change = formatFloat((obs.Price-prev)/prev*100, 3)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			obs.Time.Time().UTC().Format(time.RFC3339),
			formatFloat(obs.Price, 2),
			change,
		)
	}

	writer.Flush()
	fmt.Fprintf(a.out, "%d of %d observations\n", len(observations)-start, len(observations))

	return a.showMirror(ctx)
}

func (a *App) showMirror(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	defer closeStore()

	count, err := store.CountObservations(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d observations mirrored to postgres\n", count)
	return nil
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
