package system

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// InitResourceLimits raises the open-file soft limit; each study holds an
// ffmpeg pipe plus frame files.
func InitResourceLimits(log *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("failed to read open-file limit", zap.Error(err))
		return
	}

	want := uint64(2048)
	if want > rLimit.Max {
		want = rLimit.Max
	}
	if rLimit.Cur >= want {
		return
	}
	rLimit.Cur = want

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("failed to raise open-file limit", zap.Error(err))
		return
	}
	log.Debug("raised open-file limit", zap.Uint64("limit", rLimit.Cur))
}

// GetBestH264Encoder asks ffmpeg for a hardware encoder, preferring
// VideoToolbox, then NVENC, and falls back to libx264.
func GetBestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}

// studyMemoryBudget is a rough ceiling for one study in flight: the parsed
// dataset, decoded frames and the ffmpeg process.
const studyMemoryBudget = 512 << 20

// RecommendedWorkers returns configured when positive; otherwise one worker
// per logical CPU, capped by available memory.
func RecommendedWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = 1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		n = capByMemory(n, vm.Available)
	}
	return n
}

func capByMemory(workers int, available uint64) int {
	byMem := int(available / studyMemoryBudget)
	if byMem < 1 {
		byMem = 1
	}
	if workers > byMem {
		return byMem
	}
	return workers
}
