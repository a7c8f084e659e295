package processor

import (
	"math"
	"sort"
	"strings"

	"opsflow/models"
)

// Poll payload normalization. Each decoder accepts the raw JSON value of
// one endpoint response and produces the typed record, absorbing the field
// name drift observed across backend versions.

// MergeHealth combines a /health body and an /evergreen/status body into
// one snapshot. Either input may be nil; the merge prefers the health body
// for milestone fields and the status body for grade/mission/restart data,
// matching the precedence the original dashboard applied.
func MergeHealth(rawHealth, rawStatus interface{}) models.HealthSnapshot {
	health := AsRecord(rawHealth)
	status := AsRecord(rawStatus)

	statusText := AsString(FirstField(health, "service_status"), "")
	if statusText == "" {
		statusText = AsString(FirstField(status, "status"), "")
	}
	if statusText == "" {
		statusText = AsString(FirstField(health, "status"), "down")
	}

	ageRaw := FirstField(health, "last_heartbeat_age_sec")
	if ageRaw == nil {
		ageRaw = FirstField(status, "heartbeat_sec_ago", "last_heartbeat_age_sec")
	}
	age, ageKnown := numberIfPresent(ageRaw)

	heartbeatTs := FirstField(health, "last_heartbeat_ts")
	if heartbeatTs == nil {
		heartbeatTs = FirstField(status, "last_heartbeat_ts")
	}

	return models.HealthSnapshot{
		ServiceStatus:       strings.ToLower(statusText),
		HeartbeatAgeSec:     age,
		HeartbeatAgeKnown:   ageKnown,
		LastHeartbeatTsMs:   NormalizeTsMs(heartbeatTs),
		Grade:               AsString(FirstField(status, "grade"), AsString(health["grade"], "")),
		Mission:             AsString(FirstField(status, "mission"), AsString(health["mission"], "")),
		NextMilestone:       AsString(health["next_milestone"], ""),
		NextMilestoneEtaSec: AsNumber(health["next_milestone_eta"], 0),
		RestartCount:        AsInt(FirstField(status, "restart_count"), 0),
		CumulativeRuntime:   AsNumber(FirstField(status, "cumulative_runtime_sec"), 0),
	}
}

// DecodeHistory normalizes the /history response into an ascending
// time series. Points arrive under either points or history; runtime hours
// are derived from cumulative seconds when absent; the series is sorted by
// timestamp to guard against out-of-order delivery.
func DecodeHistory(raw interface{}) []models.HistoryPoint {
	obj := AsRecord(raw)
	points := AsList(FirstField(obj, "points", "history"))

	out := make([]models.HistoryPoint, 0, len(points))
	for _, p := range points {
		point := AsRecord(p)

		runtimeH := AsNumber(point["runtime_h"], 0)
		cum, hasCum := numberIfPresent(point["cumulative_runtime_sec"])
		if runtimeH == 0 && hasCum {
			runtimeH = cum / 3600
		}

		value := AsNumber(FirstField(point, "value", "progress_168h_pct", "progress"), runtimeH)

		hp := models.HistoryPoint{
			TsMs:         NormalizeTsMs(point["ts"]),
			Value:        value,
			RuntimeHours: runtimeH,
			ProgressPct:  AsNumber(FirstField(point, "progress_168h_pct", "progress"), 0),
			RestartCount: AsInt(point["restart_count"], 0),
		}
		if hasCum {
			hp.CumRuntimeSec = cum
		}
		out = append(out, hp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TsMs < out[j].TsMs })
	return out
}

// DecodeAlerts normalizes the /alerts response. Items arrive under either
// items or alerts; level and severity are only accepted when they are one
// of the documented values.
func DecodeAlerts(raw interface{}) []models.Alert {
	obj := AsRecord(raw)
	items := AsList(FirstField(obj, "items", "alerts"))

	out := make([]models.Alert, 0, len(items))
	for _, item := range items {
		alert := AsRecord(item)
		out = append(out, models.Alert{
			TsMs:     NormalizeTsMs(alert["ts"]),
			Level:    alertLevel(alert["level"]),
			Message:  AsString(FirstField(alert, "message", "msg"), ""),
			Code:     AsString(alert["code"], ""),
			Event:    AsString(alert["event"], ""),
			Severity: alertLevel(alert["severity"]),
		})
	}
	return out
}

// DecodeEngineState normalizes the /state/engine response. The second
// return is false when the body is not an object.
func DecodeEngineState(raw interface{}) (models.EngineState, bool) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return models.EngineState{}, false
	}
	return models.EngineState{
		KillSwitchOn: AsBool(obj["kill_switch_on"], false),
		RiskType:     AsString(obj["risk_type"], ""),
		Reason:       AsString(obj["reason"], ""),
		UptimeSec:    AsInt(obj["uptime_sec"], 0),
		Published:    AsInt(obj["published"], 0),
		Consumed:     AsInt(obj["consumed"], 0),
		PendingTotal: AsInt(obj["pending_total"], 0),
	}, true
}

// DecodePositions normalizes the /state/positions response.
func DecodePositions(raw interface{}) []models.Position {
	obj := AsRecord(raw)
	items := AsList(obj["positions"])

	out := make([]models.Position, 0, len(items))
	for _, item := range items {
		pos := AsRecord(item)
		out = append(out, models.Position{
			Symbol:        AsString(pos["symbol"], ""),
			Qty:           AsNumber(pos["qty"], 0),
			AvgEntryPrice: AsNumber(pos["avg_entry_price"], 0),
			MarkPrice:     AsNumber(FirstField(pos, "mark_price", "current_price"), 0),
			PnL:           AsNumber(FirstField(pos, "pnl", "position_pnl"), 0),
		})
	}
	return out
}

// DecodeRiskHistory normalizes the /history/risks response.
func DecodeRiskHistory(raw interface{}) []models.RiskEvent {
	obj := AsRecord(raw)
	items := AsList(FirstField(obj, "events", "items"))

	out := make([]models.RiskEvent, 0, len(items))
	for _, item := range items {
		ev := AsRecord(item)
		re := models.RiskEvent{
			TsMs:      NormalizeTsMs(FirstField(ev, "timestamp", "ts")),
			EventID:   AsString(ev["event_id"], ""),
			EventType: AsString(ev["event_type"], ""),
			Level:     AsString(ev["level"], "INFO"),
			Reason:    AsString(ev["reason"], ""),
			RiskType:  AsString(ev["risk_type"], ""),
		}
		if meta := AsRecord(ev["metadata"]); len(meta) > 0 {
			re.Metadata = meta
		}
		out = append(out, re)
	}
	return out
}

// DecodeTraceSummaries normalizes the /dashboard/traces response.
func DecodeTraceSummaries(raw interface{}) []models.TraceSummary {
	obj := AsRecord(raw)
	items := AsList(FirstField(obj, "items", "traces"))

	out := make([]models.TraceSummary, 0, len(items))
	for _, item := range items {
		tr := AsRecord(item)
		out = append(out, models.TraceSummary{
			TraceID:    AsString(tr["trace_id"], ""),
			Status:     AsString(tr["status"], ""),
			EventCount: int(AsInt(FirstField(tr, "event_count", "events"), 0)),
			StartedAt:  AsString(tr["started_at"], ""),
			UpdatedAt:  AsString(tr["updated_at"], ""),
			LastEvent:  AsString(tr["last_event"], ""),
		})
	}
	return out
}

// DecodeTraceTimeline normalizes the /dashboard/orders/{trace_id} response.
func DecodeTraceTimeline(raw interface{}) (models.TraceTimeline, bool) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return models.TraceTimeline{}, false
	}

	events := AsList(obj["events"])
	decoded := make([]models.Event, 0, len(events))
	for _, ev := range events {
		e, _ := decodeEventValue(ev)
		decoded = append(decoded, e)
	}

	return models.TraceTimeline{
		TraceID:   AsString(obj["trace_id"], ""),
		Status:    AsString(obj["status"], ""),
		StartedAt: AsString(obj["started_at"], ""),
		Events:    decoded,
	}, true
}

// DecodeDashboardSummary normalizes the /dashboard/summary response.
func DecodeDashboardSummary(raw interface{}) (models.DashboardSummary, bool) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return models.DashboardSummary{}, false
	}
	out := models.DashboardSummary{
		WindowSec:     AsInt(obj["window_sec"], 0),
		TraceCount:    AsInt(FirstField(obj, "trace_count", "traces"), 0),
		OrderCount:    AsInt(FirstField(obj, "order_count", "orders"), 0),
		RejectedCount: AsInt(FirstField(obj, "rejected_count", "rejected"), 0),
	}
	if counts := AsRecord(obj["event_counts"]); len(counts) > 0 {
		out.EventCounts = make(map[string]int64, len(counts))
		for k, v := range counts {
			out.EventCounts[k] = AsInt(v, 0)
		}
	}
	return out, true
}

func numberIfPresent(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	n := AsNumber(v, math.NaN())
	if math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func alertLevel(v interface{}) string {
	switch AsString(v, "") {
	case "info":
		return "info"
	case "warn":
		return "warn"
	case "error":
		return "error"
	}
	return ""
}
