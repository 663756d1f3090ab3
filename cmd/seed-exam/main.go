package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/logger"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// Seeds one demo exam with a mix of question types plus enrollments for
// student ids 1..20. Intended for local development only.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding demo exam ===")

	examID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO exams (id, title, duration_minutes, shuffle_questions, shuffle_options, release_grades)
		VALUES ($1, $2, $3, TRUE, TRUE, 'IMMEDIATELY')
	`, examID, "General Knowledge Demo", 30)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to insert exam")
	}
	fmt.Printf("Created exam %s\n", examID)

	type seedQuestion struct {
		qtype    model.QuestionType
		text     string
		options  []string
		correct  []string
		points   int
		required bool
	}

	questions := []seedQuestion{
		{model.QuestionTypeSingleChoice, "Which planet is closest to the sun?",
			[]string{"Venus", "Mercury", "Mars", "Earth"}, []string{"Mercury"}, 10, true},
		{model.QuestionTypeSingleChoice, "What is the chemical symbol for gold?",
			[]string{"Au", "Ag", "Gd", "Go"}, []string{"Au"}, 10, true},
		{model.QuestionTypeMultiChoice, "Select every prime number.",
			[]string{"2", "4", "7", "9", "11"}, []string{"2", "7", "11"}, 15, true},
		{model.QuestionTypeDropdown, "The capital of Australia is:",
			[]string{"Sydney", "Melbourne", "Canberra", "Perth"}, []string{"Canberra"}, 10, false},
		{model.QuestionTypeFreeText, "Explain the difference between weather and climate.",
			nil, nil, 20, true},
	}

	for i, q := range questions {
		options, _ := json.Marshal(q.options)
		correct, _ := json.Marshal(q.correct)
		_, err = pool.Exec(ctx, `
			INSERT INTO questions (id, exam_id, question_type, question_text, options, correct_answers, points, required, order_num)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), examID, q.qtype, q.text, options, correct, q.points, q.required, i+1)
		if err != nil {
			log.Fatal().Err(err).Int("order", i+1).Msg("Failed to insert question")
		}
	}
	fmt.Printf("Inserted %d questions\n", len(questions))

	enrolled := 0
	for studentID := 1; studentID <= 20; studentID++ {
		_, err = pool.Exec(ctx, `
			INSERT INTO enrollments (exam_id, student_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, examID, studentID)
		if err != nil {
			fmt.Printf("Error enrolling student %d: %v\n", studentID, err)
			continue
		}
		enrolled++
	}

	fmt.Printf("\nSeed completed! Exam %s with %d enrollments.\n", examID, enrolled)
}
