package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/logger"
	"github.com/teranos/DMS/version"
)

// printStartupBanner prints the server summary shown before the first log line
func printStartupBanner(cfg *am.Config, dbPath, addr string, verbosity int) {
	info := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println("DMS - Document Management System")
	pterm.Printf("%s %s (commit %s)\n", pterm.Gray("Version:  "), info.Version, info.Short())
	pterm.Printf("%s %s\n", pterm.Gray("Listening:"), pterm.LightCyan("http://"+addr))
	pterm.Printf("%s %s\n", pterm.Gray("Database: "), dbPath)
	pterm.Printf("%s %s%s\n", pterm.Gray("Uploads:  "), cfg.Storage.UploadDir, diskSummary(cfg.Storage.UploadDir))
	if v, err := mem.VirtualMemory(); err == nil {
		pterm.Printf("%s %s available of %s\n", pterm.Gray("Memory:   "), humanBytes(v.Available), humanBytes(v.Total))
	}
	pterm.Printf("%s %v\n", pterm.Gray("Origins:  "), cfg.Server.AllowedOrigins)
	pterm.Printf("%s %s\n", pterm.Gray("Logging:  "), logger.LevelName(verbosity))
	if cfg.Auth.SecretKey == "" {
		pterm.Warning.Println("auth.secret_key is not set; tokens will not survive a restart")
	}
	if file := am.ActiveConfigFile(); file != "" {
		pterm.Printf("%s %s %s\n", pterm.Gray("Config:   "), file, pterm.Gray("(reloads on change)"))
	}
	fmt.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}

// lowDiskBytes is the free space below which the banner warns
const lowDiskBytes = 1 << 30

// diskSummary describes free space on the volume holding dir
func diskSummary(dir string) string {
	usage, err := disk.Usage(dir)
	if err != nil {
		return ""
	}
	if usage.Free < lowDiskBytes {
		pterm.Warning.Printfln("Only %s free for uploads in %s", humanBytes(usage.Free), dir)
	}
	return pterm.Gray(fmt.Sprintf(" (%s free)", humanBytes(usage.Free)))
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
