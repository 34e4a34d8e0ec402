//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/focus"
	"github.com/eliteGoblin/focusd/timetrack/internal/infra"
	"github.com/eliteGoblin/focusd/timetrack/internal/policy"
	"github.com/eliteGoblin/focusd/timetrack/internal/pomodoro"
	"github.com/eliteGoblin/focusd/timetrack/internal/schedule"
	"github.com/eliteGoblin/focusd/timetrack/internal/usecase"
	"github.com/eliteGoblin/focusd/timetrack/test/fixtures"
)

var _ = Describe("Working Hour Manager", func() {
	var (
		tmpDir   string
		clock    *schedule.FakeClock
		desktop  *fixtures.FakeDesktop
		notifier *fixtures.RecordingNotifier
		store    *infra.SnapshotStore
		engine   *pomodoro.Engine
		manager  *usecase.Manager
		start    time.Time
		pomoCfg  pomodoro.Config
	)

	focusReport := func(kind domain.ReportKind) func() domain.FocusReport {
		return func() domain.FocusReport {
			rep, err := manager.Report(kind)
			Expect(err).NotTo(HaveOccurred())
			return rep.Focus
		}
	}

	snapshots := func() []domain.Snapshot {
		snaps, err := store.Recent(0)
		Expect(err).NotTo(HaveOccurred())
		return snaps
	}

	waitForProbe := func() {
		Eventually(desktop.Probes).Should(BeNumerically(">=", 1))
	}

	BeforeEach(func() {
		start = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
		pomoCfg = pomodoro.Config{
			RoundsPerSession: 2,
			WorkingTime:      25 * time.Minute,
			RestInSession:    5 * time.Minute,
			RestAfterSession: 20 * time.Minute,
			IdleThreshold:    2 * time.Minute,
		}
	})

	JustBeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "timetrack-integration-*")
		Expect(err).NotTo(HaveOccurred())

		listPath, err := fixtures.WriteWorkingList(tmpDir,
			policy.Rule{Class: "code"},
			policy.Rule{Class: "firefox", Names: []string{"go.dev", "github"}},
		)
		Expect(err).NotTo(HaveOccurred())

		paths := infra.NewPaths(tmpDir)
		store, err = infra.OpenSnapshotStore(paths.SnapshotDB, infra.NewFileKeyProvider(paths.KeyFile))
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		clock = schedule.NewFakeClock(start)
		desktop = fixtures.NewFakeDesktop(domain.Window{Class: "Code", Title: "main.go - timetrack"})
		notifier = &fixtures.RecordingNotifier{}

		tracker := focus.NewTracker(
			focus.DefaultConfig(),
			policy.LoadWorkingList(listPath, logger),
			desktop,
			desktop,
			notifier,
			clock,
			logger,
		)
		engine = pomodoro.NewEngine(pomoCfg, desktop, notifier, clock, logger)
		manager = usecase.NewManager(usecase.DefaultManagerConfig(), tracker, engine, store, notifier, clock, logger)
	})

	AfterEach(func() {
		manager.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("focus tracking", func() {
		It("should split foreground time into working and playing", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()

			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 5*time.Second))

			desktop.SetWindow("Firefox", "YouTube - Mozilla Firefox")
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportPlaying)).Should(HaveField("Playing", 5*time.Second))

			desktop.SetWindow("Firefox", "github.com/eliteGoblin - Mozilla Firefox")
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 10*time.Second))

			rep := focusReport(domain.ReportAll)()
			Expect(rep.Total).To(Equal(15 * time.Second))
			Expect(rep.Targets).To(HaveKey("Code"))
			Expect(rep.Targets).To(HaveKey("Firefox"))
			Expect(rep.Targets["Firefox"].Total).To(Equal(10 * time.Second))
			Expect(rep.SessionStart).NotTo(BeNil())
			Expect(rep.SessionStart.Equal(start)).To(BeTrue())

			Expect(notifier.Messages()).To(ContainElement("Focus tracker: start tracking focus"))
			Expect(notifier.Messages()).To(ContainElement(HavePrefix("Working hour report: Starting")))
		})

		It("should count an idle user as playing", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()

			desktop.SetIdle(10 * time.Minute)
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportPlaying)).Should(HaveField("Playing", 5*time.Second))

			rep := focusReport(domain.ReportPlaying)()
			Expect(rep.Targets).To(HaveKey(domain.IdleKey))
		})

		It("should keep totals across stop and clear them on reset", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 5*time.Second))

			manager.Stop(domain.TargetFocus)
			Expect(manager.ReportArmed()).To(BeFalse(), "stopping cancels the hourly report")
			Expect(focusReport(domain.ReportAll)().Total).To(Equal(5 * time.Second))

			manager.Reset()
			Expect(focusReport(domain.ReportAll)().Total).To(BeZero())
		})
	})

	Describe("hourly report", func() {
		BeforeEach(func() {
			start = time.Date(2024, 3, 1, 9, 59, 50, 0, time.UTC)
		})

		It("should report on the hour, persist a snapshot and re-arm", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()
			Expect(manager.ReportArmed()).To(BeTrue())

			clock.Advance(10 * time.Second)

			snaps := snapshots()
			Expect(snaps).To(HaveLen(1))
			Expect(snaps[0].Reason).To(Equal(domain.SnapshotHourly))
			Expect(snaps[0].TakenAt.Equal(start.Add(10 * time.Second))).To(BeTrue())
			Expect(manager.ReportArmed()).To(BeTrue())

			var rep domain.Report
			Expect(json.Unmarshal(snaps[0].Payload, &rep)).To(Succeed())
			Expect(rep.Focus.Kind).To(Equal(domain.ReportAll))

			clock.Advance(time.Hour)
			Expect(snapshots()).To(HaveLen(2))
		})

		DescribeTable("should be cancelled by any stop",
			func(target domain.Target) {
				manager.Run(domain.TargetFocus)
				waitForProbe()

				manager.Stop(target)
				Expect(manager.ReportArmed()).To(BeFalse())

				clock.Advance(2 * time.Hour)
				Expect(snapshots()).To(BeEmpty())
			},
			Entry("stop all", domain.TargetAll),
			Entry("stop focus", domain.TargetFocus),
			Entry("stop pomo", domain.TargetPomodoro),
		)
	})

	Describe("day rollover", func() {
		BeforeEach(func() {
			start = time.Date(2024, 3, 1, 6, 59, 50, 0, time.UTC)
		})

		It("should persist the finished day once the user has been away", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()

			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 5*time.Second))

			desktop.SetIdle(40 * time.Minute)
			Eventually(func() []domain.Snapshot {
				clock.Advance(5 * time.Second)
				return snapshots()
			}).Should(ContainElement(HaveField("Reason", domain.SnapshotRollover)))

			var rollover domain.Snapshot
			for _, s := range snapshots() {
				if s.Reason == domain.SnapshotRollover {
					rollover = s
				}
			}
			Expect(rollover.Working).To(Equal(5 * time.Second))

			rep := focusReport(domain.ReportAll)()
			Expect(rep.Working).To(BeZero(), "the new day starts empty")
		})
	})

	Describe("pomodoro", func() {
		remaining := func() time.Duration { return engine.Report().Remaining }
		pomodoroMessages := func() []string {
			var out []string
			for _, m := range notifier.Messages() {
				if strings.HasPrefix(m, "Pomodoro timer: ") {
					out = append(out, m)
				}
			}
			return out
		}

		It("should alternate working and resting rounds", func() {
			manager.Run(domain.TargetPomodoro)
			Eventually(remaining).Should(Equal(25 * time.Minute))
			Expect(engine.Report().State).To(Equal(domain.PomodoroWorking))

			clock.Advance(25 * time.Minute)
			Expect(engine.Report().State).To(Equal(domain.PomodoroResting))

			clock.Advance(5 * time.Minute)
			Expect(engine.Report()).To(HaveField("Round", 1))

			clock.Advance(25 * time.Minute)
			clock.Advance(20 * time.Minute)
			Expect(engine.Report()).To(HaveField("Round", 0))

			Expect(pomodoroMessages()).To(Equal([]string{
				"Pomodoro timer: Start working. Round 0 for 25 mins",
				"Pomodoro timer: Start resting. Round 0 done. Resting for 5 mins.",
				"Pomodoro timer: Start working. Round 1 for 25 mins",
				"Pomodoro timer: Start resting. Session done. Resting for 20 mins.",
				"Pomodoro timer: Start working. Round 0 for 25 mins",
			}))
		})

		It("should give up when the user is idle", func() {
			desktop.SetIdle(10 * time.Minute)

			manager.Run(domain.TargetPomodoro)

			Eventually(notifier.Messages).Should(ContainElement("Pomodoro timer: Idle for a long time. Stop working"))
			Expect(engine.Report().State).To(Equal(domain.PomodoroIdle))
		})
	})

	Describe("shutdown", func() {
		It("should persist a final snapshot when time was tracked", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 5*time.Second))

			manager.Close()

			snaps := snapshots()
			Expect(snaps).To(ContainElement(HaveField("Reason", domain.SnapshotShutdown)))
			Expect(notifier.Messages()).To(ContainElement("Focus tracker: stop tracking focus"))
		})

		It("should survive reopening the encrypted store", func() {
			manager.Run(domain.TargetFocus)
			waitForProbe()
			clock.Advance(5 * time.Second)
			Eventually(focusReport(domain.ReportWorking)).Should(HaveField("Working", 5*time.Second))
			manager.Close()
			Expect(store.Close()).To(Succeed())

			paths := infra.NewPaths(tmpDir)
			reopened, err := infra.OpenSnapshotStore(paths.SnapshotDB, infra.NewFileKeyProvider(paths.KeyFile))
			Expect(err).NotTo(HaveOccurred())
			store = reopened

			Expect(snapshots()).To(HaveLen(1))
			Expect(filepath.Join(tmpDir, ".snapshot.key")).To(BeAnExistingFile())
		})
	})
})
