package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unminlab/unmin/internal/daemon"
	"github.com/unminlab/unmin/pkg/logger"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Control the rename daemon",
	Long: `The daemon keeps one language server session warm so repeated rename
batches skip process startup. It is started on demand by 'unmin rename',
but can be controlled explicitly here.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon if it is not already running",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running, and its vitals",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func daemonLock() (*daemon.LockFile, error) {
	lockPath, err := cfg.LockPath()
	if err != nil {
		return nil, err
	}
	return daemon.NewLockFile(lockPath), nil
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	lock, err := daemonLock()
	if err != nil {
		return err
	}

	client := daemon.NewClient(cfg.Addr(), lock, logger.Default(),
		daemon.WithStartupWait(cfg.StartupWait()))

	running, err := client.IsRunning()
	if err != nil {
		return err
	}
	if running {
		printWarn("daemon already running on %s", cfg.Addr())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupWait()+5*time.Second)
	defer cancel()
	if err := client.EnsureRunning(ctx); err != nil {
		return err
	}
	printOK("daemon started on %s", cfg.Addr())
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	lock, err := daemonLock()
	if err != nil {
		return err
	}
	if err := daemon.StopDaemon(lock, 10*time.Second); err != nil {
		return err
	}
	printOK("daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	lock, err := daemonLock()
	if err != nil {
		return err
	}

	st, err := daemon.ProbeStatus(lock, cfg.Addr())
	if err != nil {
		return err
	}
	if !st.Running {
		printWarn("daemon is not running (would listen on %s)", st.Addr)
		return nil
	}

	fmt.Println(titleStyle.Render("Daemon status"))
	fmt.Printf("  pid      %d\n", st.PID)
	fmt.Printf("  address  %s\n", st.Addr)
	fmt.Printf("  uptime   %s\n", st.Uptime)
	if st.RSS > 0 {
		fmt.Printf("  memory   %.1f MiB\n", float64(st.RSS)/(1024*1024))
	}
	if st.CPU > 0 {
		fmt.Printf("  cpu      %.1f%%\n", st.CPU)
	}
	return nil
}
