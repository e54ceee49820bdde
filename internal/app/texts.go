package app

import (
	"fmt"
	"strconv"
	"time"

	"remindbot/internal/broadcast"
	"remindbot/pkg/tgui"
)

// Human names for the timezones the bot has been deployed in.
var zoneNamesEN = map[string]string{"Europe/Chisinau": "Moldova time"}
var zoneNamesRU = map[string]string{"Europe/Chisinau": "по времени Молдовы"}

// helpText renders "This bot sends daily reminders at 9 PM Moldova time."
func helpText(s broadcast.Schedule) string {
	tz := s.Location().String()
	zone, ok := zoneNamesEN[tz]
	if !ok {
		zone = tz + " time"
	}
	if s.Daily() != "" {
		return fmt.Sprintf("This bot sends daily reminders at %s %s.", clock12(s.Daily()), zone)
	}
	return fmt.Sprintf("This bot sends reminders on the schedule %q (%s).", s.Spec(), zone)
}

// startReply is the /start confirmation.
func startReply(s broadcast.Schedule, override string) string {
	if override != "" {
		return override
	}
	tz := s.Location().String()
	zone, ok := zoneNamesRU[tz]
	if !ok {
		zone = "(" + tz + ")"
	}
	when := "каждый день в " + s.Daily()
	if s.Daily() == "" {
		when = fmt.Sprintf("по расписанию %q", s.Spec())
	}
	return fmt.Sprintf("Привет! Теперь я буду спрашивать %q %s %s!", s.Message(), when, zone)
}

// clock12 turns "21:00" into "9 PM" and "07:30" into "7:30 AM".
func clock12(hhmm string) string {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return hhmm
	}
	h, err1 := strconv.Atoi(hhmm[:2])
	m, err2 := strconv.Atoi(hhmm[3:])
	if err1 != nil || err2 != nil {
		return hhmm
	}
	t := time.Date(2000, 1, 1, h, m, 0, 0, time.UTC)
	if m == 0 {
		return t.Format("3 PM")
	}
	return t.Format("3:04 PM")
}

func htmlDemo() tgui.H {
	return tgui.JoinH(" ", tgui.B("Some"), tgui.Spoiler("HTML"))
}

func statusText(st broadcast.Status, subscribed bool, sched broadcast.Schedule) tgui.H {
	yes := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	loc := sched.Location()
	lines := []tgui.H{
		tgui.B("Broadcast status"),
		tgui.Esc("This chat subscribed: " + yes(subscribed)),
		tgui.Esc("Chats: " + strconv.Itoa(st.Recipients)),
		tgui.Esc("Schedule: " + sched.Describe()),
	}
	if st.Started {
		lines = append(lines, tgui.Esc("Next run: "+st.Next.In(loc).Format("2006-01-02 15:04 MST")))
	} else {
		lines = append(lines, tgui.Esc("Trigger: idle until the first /start"))
	}
	if st.Last != nil {
		lines = append(lines, tgui.Esc(fmt.Sprintf("Last run: %s, delivered %d/%d, removed %d",
			st.Last.At.In(loc).Format("2006-01-02 15:04 MST"),
			st.Last.Delivered, st.Last.Attempted, st.Last.Failed)))
	}
	return tgui.JoinH("\n", lines...)
}
