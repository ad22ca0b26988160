package app

import (
	"database/sql"
	"net/http"
	"time"

	"toeicprep/internal/app/observability"
	"toeicprep/internal/auth"
	"toeicprep/internal/catalog"
	"toeicprep/internal/exam"
	"toeicprep/internal/schedule"
	"toeicprep/internal/vocab"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB, results exam.ResultStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		HMACSecret: cfg.JWTSecret,
		TokenTTL:   cfg.JWTTokenTTL,
	})
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(db, results, cfg.DefaultTestMinutes)
	examHandler := exam.NewHandler(examSvc)

	catalogHandler := catalog.NewHandler(catalog.NewService(db))
	scheduleHandler := schedule.NewHandler(schedule.NewService(db))
	vocabHandler := vocab.NewHandler(vocab.NewService(db))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(RateLimitMiddleware(authLimiter))
			pub.Post("/auth/login", authHandler.Login)
			pub.Post("/auth/register", authHandler.Register)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/tests", examHandler.ListTests)
			secure.Get("/tests/{examID}/questions", examHandler.GetQuestions)
			secure.Get("/tests/{examID}/latest-result", examHandler.LatestResult)

			secure.Post("/attempts/start", examHandler.Start)
			secure.Get("/attempts/{id}", examHandler.GetAttempt)
			secure.Get("/attempts/{id}/result", examHandler.Result)
			secure.Put("/attempts/{id}/answers/{questionID}", examHandler.SaveAnswer)
			secure.Post("/attempts/{id}/submit", examHandler.Submit)

			secure.Get("/courses", catalogHandler.ListCourses)
			secure.Get("/courses/{id}", catalogHandler.GetCourse)
			secure.Post("/courses/{id}/enroll", catalogHandler.Enroll)
			secure.Delete("/courses/{id}/enroll", catalogHandler.Unenroll)
			secure.Get("/enrollments", catalogHandler.MyEnrollments)

			secure.Get("/schedule/sessions", scheduleHandler.ListSessions)
			secure.Get("/schedule/makeup-slots", scheduleHandler.ListSlots)
			secure.Post("/schedule/makeup-slots/{id}/book", scheduleHandler.BookSlot)
			secure.Delete("/schedule/makeup-slots/{id}/book", scheduleHandler.CancelBooking)
			secure.Get("/schedule/bookings", scheduleHandler.MyBookings)

			secure.Get("/vocab/decks", vocabHandler.ListDecks)
			secure.Get("/vocab/decks/{deckID}/cards", vocabHandler.ListCards)
			secure.Get("/vocab/decks/{deckID}/quiz", vocabHandler.DrawQuiz)
			secure.Post("/vocab/decks/{deckID}/quiz/grade", vocabHandler.GradeQuiz)

			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles("admin", "teacher"))
				staff.Get("/tests/{examID}/answer-key", examHandler.GetAnswerKey)
				staff.Put("/admin/tests/{examID}", examHandler.UpsertTest)

				staff.Post("/admin/schedule/sessions", scheduleHandler.CreateSession)
				staff.Delete("/admin/schedule/sessions/{id}", scheduleHandler.DeleteSession)
				staff.Post("/admin/schedule/makeup-slots", scheduleHandler.CreateSlot)

				staff.Post("/admin/vocab/decks", vocabHandler.CreateDeck)
				staff.Delete("/admin/vocab/decks/{deckID}", vocabHandler.DeleteDeck)
				staff.Post("/admin/vocab/decks/{deckID}/cards", vocabHandler.AddCard)
				staff.Delete("/admin/vocab/cards/{cardID}", vocabHandler.DeleteCard)
				staff.Get("/admin/vocab/decks/{deckID}/export", vocabHandler.ExportDeck)
				staff.Post("/admin/vocab/decks/{deckID}/import", vocabHandler.ImportDeck)
			})

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Post("/admin/courses", catalogHandler.CreateCourse)
				admin.Put("/admin/courses/{id}", catalogHandler.UpdateCourse)
			})
		})
	})

	return r
}
