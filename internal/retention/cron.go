package retention

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер расписания: пять полей или дескриптор (@hourly, @every 1h).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule проверяет выражение расписания.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", expr, err)
	}
	return nil
}
