package tools

import (
	"net"
	"net/http"
	"time"
)

// CheckInNetwork prevents out-of-network requests to dashboard endpoints.
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

var privateBlocks = func() []*net.IPNet {
	blocks := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, cidr, _ := net.ParseCIDR(block)
		nets = append(nets, cidr)
	}
	return nets
}()

func isLocalAddress(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	for _, cidr := range privateBlocks {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

const (
	layoutInput = "2006-01-02T15:04"
	layoutDB    = "2006-01-02 15:04:05"
)

// ParseStartAndEndDate reads the start/end form values and formats them for
// comparison against the DB's UTC timestamps. Missing values default to the
// last eight hours.
func ParseStartAndEndDate(r *http.Request) (string, string) {
	r.ParseForm()
	startDate := r.FormValue("start")
	endDate := r.FormValue("end")
	if startDate == "" || endDate == "" {
		return time.Now().UTC().Add(-8 * time.Hour).Format(layoutDB),
			time.Now().UTC().Format(layoutDB)
	}

	if t, err := time.ParseInLocation(layoutInput, startDate, time.Local); err != nil {
		Logger.WithError(err).Error("error parsing start date")
	} else {
		startDate = t.UTC().Format(layoutDB)
	}
	if t, err := time.ParseInLocation(layoutInput, endDate, time.Local); err != nil {
		Logger.WithError(err).Error("error parsing end date")
	} else {
		endDate = t.UTC().Format(layoutDB)
	}
	return startDate, endDate
}

// StartAndEndDateToTime parses a DB-formatted date pair back into times.
func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(layoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(layoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
