package class

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/geocode"
	"github.com/aanand-mishra/attendance-api/internal/link"
	"github.com/aanand-mishra/attendance-api/internal/storage/sqlite"
	"github.com/aanand-mishra/attendance-api/internal/types"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

const baseURL = "https://attend.example.edu"

type MockReverser struct {
	mock.Mock
}

func (m *MockReverser) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}

func newRouter(t *testing.T, rev geocode.Reverser) (*http.ServeMux, *sqlite.SQLite) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/classes", New(db, rev, baseURL))
	mux.HandleFunc("GET /api/classes", GetList(db))
	mux.HandleFunc("GET /api/classes/{id}", GetByID(db))
	mux.HandleFunc("GET /api/classes/{id}/qr.png", QRCode(db, 128))
	mux.HandleFunc("GET /api/classes/{id}/attendees", Attendees(db))
	mux.HandleFunc("GET /api/classes/{id}/attendees.csv", AttendeesCSV(db))
	return mux, db
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	mux.ServeHTTP(rec, req)
	return rec
}

const validBody = `{
	"courseTitle": "Distributed Systems",
	"courseCode": "CSC401",
	"date": "2024-03-01",
	"time": "09:00",
	"locationName": "Lecture Theatre 1",
	"lecturerId": "lect-1",
	"lat": 6.5244,
	"lng": 3.3792
}`

func schedule(t *testing.T, mux http.Handler, body string) created {
	t.Helper()
	rec := do(mux, http.MethodPost, "/api/classes", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got created
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestNew(t *testing.T) {
	mux, _ := newRouter(t, nil)

	got := schedule(t, mux, validBody)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, got.ID, got.CourseID)
	assert.Equal(t, "SRID=4326;POINT(3.3792 6.5244)", got.Location)
	assert.Equal(t, "Lecture Theatre 1", got.LocationName)
	assert.False(t, got.Swapped)
	assert.Empty(t, got.Attendees)

	p, err := link.ParseURL(got.AttendanceURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.AttendanceURL, baseURL+"/attendance?"))
	assert.Equal(t, got.ID, p.CourseID)
	assert.Equal(t, "CSC401", p.CourseCode)
	assert.Equal(t, "09:00", p.Time)
	venue, ok := p.Venue()
	require.True(t, ok)
	assert.Equal(t, geo.Coordinate{Lat: 6.5244, Lng: 3.3792}, venue)
}

func TestNew_SwapsReversedCoordinates(t *testing.T) {
	mux, _ := newRouter(t, nil)

	body := strings.Replace(validBody, `"lat": 6.5244,
	"lng": 3.3792`, `"lat": 103.3792,
	"lng": 6.5244`, 1)
	got := schedule(t, mux, body)

	assert.True(t, got.Swapped)
	assert.Equal(t, geo.Coordinate{Lat: 6.5244, Lng: 103.3792}, got.Venue)
	assert.Equal(t, "SRID=4326;POINT(103.3792 6.5244)", got.Location)
}

func TestNew_ReverseGeocode(t *testing.T) {
	rev := new(MockReverser)
	rev.On("Reverse", mock.Anything, geo.Coordinate{Lat: 6.5244, Lng: 3.3792}).
		Return("University of Lagos, Akoka", nil)
	mux, _ := newRouter(t, rev)

	body := strings.Replace(validBody, `"lecturerId"`, `"useReverseGeocode": true, "lecturerId"`, 1)
	got := schedule(t, mux, body)

	assert.Equal(t, "University of Lagos, Akoka", got.LocationName)
	rev.AssertExpectations(t)
}

func TestNew_ReverseGeocodeFailureFallsBack(t *testing.T) {
	rev := new(MockReverser)
	rev.On("Reverse", mock.Anything, mock.Anything).Return("", errors.New("timeout"))
	mux, _ := newRouter(t, rev)

	body := strings.Replace(validBody, `"locationName": "Lecture Theatre 1",`, `"useReverseGeocode": true,`, 1)
	got := schedule(t, mux, body)

	assert.Equal(t, "Lat 6.5244, Lng 3.3792", got.LocationName)
}

func TestNew_Rejects(t *testing.T) {
	mux, _ := newRouter(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "request body is empty"},
		{"malformed", "{", ""},
		{"missing fields", `{"courseTitle":"x"}`, "field CourseCode is required"},
		{"bad date", strings.Replace(validBody, "2024-03-01", "01/03/2024", 1), "field Date must match 2006-01-02"},
		{"missing venue", strings.Replace(validBody, `"lat": 6.5244,`, "", 1), "field Lat is required"},
		{"both out of range", strings.Replace(validBody, `"lng": 3.3792`, `"lng": 200`, 1), "invalid venue coordinates"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/api/classes", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body response.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, response.StatusError, body.Status)
			assert.Contains(t, body.Error, tc.want)
		})
	}
}

func TestGetByIDAndList(t *testing.T) {
	mux, _ := newRouter(t, nil)
	first := schedule(t, mux, validBody)
	schedule(t, mux, strings.Replace(validBody, "lect-1", "lect-2", 1))

	rec := do(mux, http.MethodGet, "/api/classes/"+first.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.ClassRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, first.ID, got.ID)

	rec = do(mux, http.MethodGet, "/api/classes?lecturerId=lect-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.ClassRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	rec = do(mux, http.MethodGet, "/api/classes?lecturerId=nobody", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetByID_NotFound(t *testing.T) {
	mux, _ := newRouter(t, nil)

	for _, target := range []string{
		"/api/classes/missing",
		"/api/classes/missing/qr.png",
		"/api/classes/missing/attendees",
		"/api/classes/missing/attendees.csv",
	} {
		rec := do(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestQRCode(t *testing.T) {
	mux, _ := newRouter(t, nil)
	c := schedule(t, mux, validBody)

	rec := do(mux, http.MethodGet, "/api/classes/"+c.ID+"/qr.png", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestAttendees(t *testing.T) {
	mux, db := newRouter(t, nil)
	c := schedule(t, mux, validBody)

	entry := types.AttendeeEntry{MatricNo: "CSC/2019/001", Name: "ADA OBI", Timestamp: "2024-03-01T09:01:00.000Z"}
	_, err := db.AppendAttendee(context.Background(), c.ID, entry)
	require.NoError(t, err)

	rec := do(mux, http.MethodGet, "/api/classes/"+c.ID+"/attendees", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []types.AttendeeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []types.AttendeeEntry{entry}, got)

	rec = do(mux, http.MethodGet, "/api/classes/"+c.ID+"/attendees.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="attendance_csc401_2024-03-01.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t,
		"matric_no,name,timestamp\nCSC/2019/001,ADA OBI,2024-03-01T09:01:00.000Z\n",
		rec.Body.String())
}
