package compliance_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/worklens/worklens/internal"
	"github.com/worklens/worklens/internal/compliance"
)

type stubServiceAPI struct {
	runSummary  *compliance.RunSummary
	getRunError error
	overview    *compliance.Overview
	trends      []compliance.TrendPoint
	trendsError error
	list        *compliance.ViolationList
	listError   error
	updated     *compliance.Violation
	updateError error
	config      compliance.Config

	gotFilter compliance.ViolationFilter
	gotDays   int
	gotStatus compliance.Status
}

func (s *stubServiceAPI) RunCheck() *compliance.RunSummary { return s.runSummary }

func (s *stubServiceAPI) GetRun(runID string) (*compliance.RunSummary, error) {
	if s.getRunError != nil {
		return nil, s.getRunError
	}
	return s.runSummary, nil
}

func (s *stubServiceAPI) Overview(r *http.Request) (*compliance.Overview, error) {
	return s.overview, nil
}

func (s *stubServiceAPI) Trends(r *http.Request, days int) ([]compliance.TrendPoint, error) {
	s.gotDays = days
	if s.trendsError != nil {
		return nil, s.trendsError
	}
	return s.trends, nil
}

func (s *stubServiceAPI) ListViolations(filter compliance.ViolationFilter) (*compliance.ViolationList, error) {
	s.gotFilter = filter
	if s.listError != nil {
		return nil, s.listError
	}
	return s.list, nil
}

func (s *stubServiceAPI) UpdateViolationStatus(id int64, dto compliance.UpdateStatusDTO) (*compliance.Violation, error) {
	s.gotStatus = dto.Status
	if s.updateError != nil {
		return nil, s.updateError
	}
	return s.updated, nil
}

func (s *stubServiceAPI) GetConfig() (compliance.Config, error) { return s.config, nil }

func (s *stubServiceAPI) UpdateConfig(dto compliance.UpdateConfigDTO) (*compliance.Config, error) {
	merged := s.config
	if dto.MissingEntryDays != nil {
		merged.MissingEntryDays = *dto.MissingEntryDays
	}
	return &merged, nil
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

var _ = Describe("ComplianceHandler", func() {
	var (
		stub    *stubServiceAPI
		handler *compliance.Handler
	)

	BeforeEach(func() {
		stub = &stubServiceAPI{
			runSummary: &compliance.RunSummary{
				RunID:  "run-1",
				Status: compliance.RunStatusAccepted,
				AsOf:   time.Now().UTC(),
			},
			overview: &compliance.Overview{ComplianceRate: 75, ActiveUsers: 4},
			trends: []compliance.TrendPoint{
				{Date: "2025-03-18", ComplianceRate: 100},
				{Date: "2025-03-19", ComplianceRate: 75},
			},
			list: &compliance.ViolationList{
				Violations: []compliance.ViolationView{},
				Total:      0,
				Limit:      20,
			},
			updated: &compliance.Violation{ID: 1, Kind: compliance.KindMissingEntry, Status: compliance.StatusResolved},
			config:  *compliance.DefaultConfig(),
		}
		handler = compliance.NewHandler(stub)
	})

	Describe("RunCheck", func() {
		It("returns 202 with the run handle", func() {
			req := httptest.NewRequest(http.MethodPost, "/compliance/check", nil)
			w := httptest.NewRecorder()

			handler.RunCheck(w, req)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var body map[string]string
			Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
			Expect(body["run_id"]).To(Equal("run-1"))
			Expect(body["status"]).To(Equal("accepted"))
		})
	})

	Describe("GetRun", func() {
		It("returns the run summary", func() {
			req := withURLParam(httptest.NewRequest(http.MethodGet, "/compliance/runs/run-1", nil), "id", "run-1")
			w := httptest.NewRecorder()

			handler.GetRun(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 404 for unknown runs", func() {
			stub.getRunError = compliance.ErrRunNotFound
			req := withURLParam(httptest.NewRequest(http.MethodGet, "/compliance/runs/nope", nil), "id", "nope")
			w := httptest.NewRecorder()

			handler.GetRun(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Overview", func() {
		It("returns the aggregate", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/overview", nil)
			w := httptest.NewRecorder()

			handler.Overview(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var body compliance.Overview
			Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
			Expect(body.ComplianceRate).To(Equal(75.0))
		})
	})

	Describe("Trends", func() {
		It("parses the days parameter", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/trends?days=14", nil)
			w := httptest.NewRecorder()

			handler.Trends(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(stub.gotDays).To(Equal(14))
		})

		It("rejects a non-numeric days parameter", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/trends?days=soon", nil)
			w := httptest.NewRecorder()

			handler.Trends(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps window validation errors to 400", func() {
			stub.trendsError = internal.NewValidationError("days must be between 1 and 90", internal.ErrCodeInvalidWindow)
			req := httptest.NewRequest(http.MethodGet, "/compliance/trends?days=91", nil)
			w := httptest.NewRecorder()

			handler.Trends(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("ListViolations", func() {
		It("passes filters through", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/violations?kind=late_entry&severity=high&user_id=7&limit=50&offset=10", nil)
			w := httptest.NewRecorder()

			handler.ListViolations(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(stub.gotFilter.Kind).To(Equal("late_entry"))
			Expect(stub.gotFilter.Severity).To(Equal("high"))
			Expect(stub.gotFilter.UserID).To(Equal(int64(7)))
			Expect(stub.gotFilter.Limit).To(Equal(50))
			Expect(stub.gotFilter.Offset).To(Equal(10))
		})

		It("rejects a non-numeric user_id", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/violations?user_id=me", nil)
			w := httptest.NewRecorder()

			handler.ListViolations(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a non-numeric limit", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/violations?limit=many", nil)
			w := httptest.NewRecorder()

			handler.ListViolations(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a non-numeric offset", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/violations?offset=next", nil)
			w := httptest.NewRecorder()

			handler.ListViolations(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps filter validation errors to 400", func() {
			stub.listError = internal.NewValidationError("unknown violation kind", internal.ErrCodeInvalidFilter)
			req := httptest.NewRequest(http.MethodGet, "/compliance/violations?kind=nonsense", nil)
			w := httptest.NewRecorder()

			handler.ListViolations(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("UpdateViolationStatus", func() {
		newRequest := func(id, body string) *http.Request {
			req := httptest.NewRequest(http.MethodPatch, "/compliance/violations/"+id+"/status", strings.NewReader(body))
			return withURLParam(req, "id", id)
		}

		It("applies the transition", func() {
			w := httptest.NewRecorder()

			handler.UpdateViolationStatus(w, newRequest("1", `{"status":"resolved"}`))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(stub.gotStatus).To(Equal(compliance.StatusResolved))

			var body compliance.ViolationView
			Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
			Expect(body.Description).NotTo(BeEmpty())
		})

		It("rejects a non-numeric id", func() {
			w := httptest.NewRecorder()

			handler.UpdateViolationStatus(w, newRequest("abc", `{"status":"resolved"}`))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed bodies", func() {
			w := httptest.NewRecorder()

			handler.UpdateViolationStatus(w, newRequest("1", `{`))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for unknown violations", func() {
			stub.updateError = compliance.ErrViolationNotFound
			w := httptest.NewRecorder()

			handler.UpdateViolationStatus(w, newRequest("404", `{"status":"resolved"}`))

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("maps terminal conflicts to 409", func() {
			stub.updateError = internal.NewConflictError(
				"violation is already in a terminal status", internal.ErrCodeStatusTerminal)
			w := httptest.NewRecorder()

			handler.UpdateViolationStatus(w, newRequest("1", `{"status":"ignored"}`))

			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Config", func() {
		It("returns the current record", func() {
			req := httptest.NewRequest(http.MethodGet, "/compliance/config", nil)
			w := httptest.NewRecorder()

			handler.GetConfig(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var body compliance.Config
			Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
			Expect(body.MissingEntryDays).To(Equal(7))
		})

		It("rejects malformed update bodies", func() {
			req := httptest.NewRequest(http.MethodPatch, "/compliance/config", strings.NewReader(`{`))
			w := httptest.NewRecorder()

			handler.UpdateConfig(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
