package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskgate/internal/config"
	"taskgate/internal/engine"
	"taskgate/internal/ical"
	"taskgate/internal/store"
)

var (
	windowsDate string
	windowsTZ   string
	windowsAll  bool
	windowsICS  bool
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Compute blocking windows for a date and print them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		zones := engine.NewZoneCache()
		zone := conf.Timezone
		if windowsTZ != "" {
			zone = windowsTZ
		}
		loc, err := zones.Load(zone)
		if err != nil {
			return fmt.Errorf("unresolvable timezone %q: %w", zone, err)
		}

		date := engine.Today(loc)
		if windowsDate != "" {
			date, err = engine.ParseDate(windowsDate)
			if err != nil {
				return err
			}
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

		windows := engine.BuildWindows(tasks, engine.WindowOptions{
			Date:               date,
			DefaultTimezone:    zone,
			PreGraceMin:        conf.PreGraceMinutes,
			PostGraceMin:       conf.PostGraceMinutes,
			DurationDefaultMin: conf.DurationMinutes,
			FocusTags:          conf.FocusTags,
			FocusOnly:          !windowsAll,
			RedirectURL:        conf.RedirectURL,
			Merge:              true,
		}, zones)

		if windowsICS {
			fmt.Print(ical.Serialize(windows, time.Now().UTC()))
			return nil
		}

		type out struct {
			StartAt  string `json:"start_at"`
			EndAt    string `json:"end_at"`
			Reason   string `json:"reason"`
			Severity string `json:"severity"`
		}
		list := make([]out, 0, len(windows))
		for _, w := range windows {
			list = append(list, out{
				StartAt:  engine.FormatInstant(w.Start),
				EndAt:    engine.FormatInstant(w.End),
				Reason:   w.Reason,
				Severity: w.Severity,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}

func init() {
	windowsCmd.Flags().StringVar(&windowsDate, "date", "", "Target date (YYYY-MM-DD, default today)")
	windowsCmd.Flags().StringVar(&windowsTZ, "tz", "", "IANA timezone (overrides config)")
	windowsCmd.Flags().BoolVar(&windowsAll, "all", false, "Include tasks without a focus tag")
	windowsCmd.Flags().BoolVar(&windowsICS, "ics", false, "Print as an iCalendar feed instead of JSON")
}
