package log

import "log/slog"

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func StepID[T ~string](id T) slog.Attr {
	return slog.String("step_id", string(id))
}

func RunID[T ~string](id T) slog.Attr {
	return slog.String("run_id", string(id))
}

func IncidentID[T ~string](id T) slog.Attr {
	return slog.String("incident_id", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

func Position(pos int) slog.Attr {
	return slog.Int("position", pos)
}

func Latency(ms int64) slog.Attr {
	return slog.Int64("latency_ms", ms)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
