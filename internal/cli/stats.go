package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskgate/internal/config"
	"taskgate/internal/engine"
	"taskgate/internal/store"
)

var (
	statsFrom string
	statsTo   string
	statsTZ   string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print day stats and streaks for a date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		zones := engine.NewZoneCache()
		zone := conf.Timezone
		if statsTZ != "" {
			zone = statsTZ
		}
		loc, err := zones.Load(zone)
		if err != nil {
			return fmt.Errorf("unresolvable timezone %q: %w", zone, err)
		}

		to := engine.Today(loc)
		if statsTo != "" {
			to, err = engine.ParseDate(statsTo)
			if err != nil {
				return err
			}
		}
		from := to.AddDays(-13)
		if statsFrom != "" {
			from, err = engine.ParseDate(statsFrom)
			if err != nil {
				return err
			}
		}
		if from.After(to) {
			return fmt.Errorf("from %s is after to %s", from, to)
		}

		st, err := store.Open(conf.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		tasks, err := st.ActiveTasks(cmd.Context())
		if err != nil {
			return err
		}
		logs, err := st.LogsInRange(cmd.Context(), nil,
			from.Time().Add(-48*time.Hour), to.Time().Add(72*time.Hour))
		if err != nil {
			return err
		}

		stats := engine.DayStats(tasks, logs, from, to, zone, zones)
		streak := engine.Streak(stats, from, to, to)

		for d := from; !d.After(to); d = d.AddDays(1) {
			s := stats[d.String()]
			mark := " "
			if s.Done {
				mark = "x"
			}
			fmt.Printf("%s [%s] required=%d completed=%d\n", s.Date, mark, s.Required, s.Completed)
		}
		fmt.Printf("streak: current=%d longest=%d", streak.Current, streak.Longest)
		if streak.BreakDate != "" {
			fmt.Printf(" broken=%s", streak.BreakDate)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "Range start (YYYY-MM-DD, default 13 days before to)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "Range end (YYYY-MM-DD, default today)")
	statsCmd.Flags().StringVar(&statsTZ, "tz", "", "IANA timezone (overrides config)")
}
