package main

import (
	"context"
	"fmt"
	"time"

	"github.com/qcmdesk/qcmdesk-backend/internal/config"
	"github.com/qcmdesk/qcmdesk-backend/internal/database"
	"github.com/qcmdesk/qcmdesk-backend/internal/logger"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// Seeds one branch, one professor, 20 students and a demo QCM so a fresh
// install has something to click through. All accounts get the password
// "demo-pass".
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	qcmRepo := repository.NewQCMRepository(pool)
	qcmService := service.NewQCMService(qcmRepo)

	fmt.Println("=== Seeding Demo Data ===")

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-pass"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	branch := &model.Branch{Name: "Informatique"}
	if err := userRepo.CreateBranch(ctx, branch); err != nil {
		log.Fatal().Err(err).Msg("Failed to create branch")
	}
	fmt.Printf("Branch 'Informatique' ready with ID: %d\n", branch.ID)

	professor := &model.User{
		Email:        "prof@qcmdesk.local",
		FirstName:    "Pauline",
		LastName:     "Mercier",
		PasswordHash: string(hash),
		Role:         model.RoleProfessor,
	}
	if err := userRepo.Create(ctx, professor); err != nil {
		log.Fatal().Err(err).Msg("Failed to create professor")
	}
	fmt.Printf("Professor %s created with ID: %d\n", professor.Email, professor.ID)

	firstNames := []string{
		"Amine", "Lina", "Hugo", "Sofia", "Nathan",
		"Emma", "Karim", "Julie", "Thomas", "Leila",
		"Lucas", "Chloe", "Mehdi", "Sarah", "Antoine",
		"Ines", "Maxime", "Camille", "Yanis", "Manon",
	}

	successCount := 0
	for i, firstName := range firstNames {
		student := &model.User{
			Email:        fmt.Sprintf("student%02d@qcmdesk.local", i+1),
			FirstName:    firstName,
			LastName:     fmt.Sprintf("Etudiant%02d", i+1),
			PasswordHash: string(hash),
			Role:         model.RoleStudent,
			BranchID:     &branch.ID,
		}
		if err := userRepo.Create(ctx, student); err != nil {
			fmt.Printf("Error creating student %s: %v\n", student.Email, err)
			continue
		}
		successCount++
	}
	fmt.Printf("Created %d/%d students\n", successCount, len(firstNames))

	req := &model.CreateQCMRequest{
		Title:     "Go Fundamentals",
		Module:    "PROG-101",
		Questions: demoQuestions(),
	}
	qcm, err := qcmService.Create(ctx, professor.ID, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo QCM")
	}
	fmt.Printf("Demo QCM '%s' created with %d questions (ID: %s)\n", qcm.Title, len(qcm.Questions), qcm.ID)

	fmt.Println("\nSeed completed! Log in as prof@qcmdesk.local / demo-pass")
}

func demoQuestions() []model.QuestionInput {
	return []model.QuestionInput{
		{
			Text: "What is the zero value of a pointer in Go?",
			Choices: []model.ChoiceInput{
				{Text: "0"},
				{Text: "nil", IsCorrect: true},
				{Text: "undefined"},
				{Text: "void"},
			},
		},
		{
			Text: "Which keyword starts a new goroutine?",
			Choices: []model.ChoiceInput{
				{Text: "async"},
				{Text: "spawn"},
				{Text: "go", IsCorrect: true},
				{Text: "thread"},
			},
		},
		{
			Text: "What does a channel's zero value behave like?",
			Choices: []model.ChoiceInput{
				{Text: "An empty buffered channel"},
				{Text: "A closed channel"},
				{Text: "A channel that blocks forever", IsCorrect: true},
				{Text: "A panic on first use"},
			},
		},
		{
			Text: "Which function converts an int to a string of its decimal digits?",
			Choices: []model.ChoiceInput{
				{Text: "string(i)"},
				{Text: "strconv.Itoa(i)", IsCorrect: true},
				{Text: "fmt.String(i)"},
				{Text: "cast.ToString(i)"},
			},
		},
		{
			Text: "How are errors conventionally returned in Go?",
			Choices: []model.ChoiceInput{
				{Text: "Thrown as exceptions"},
				{Text: "As the last return value", IsCorrect: true},
				{Text: "Via a global errno"},
				{Text: "Through panic/recover"},
			},
		},
		{
			Text: "What does `defer` guarantee?",
			Choices: []model.ChoiceInput{
				{Text: "The call runs in a new goroutine"},
				{Text: "The call runs when the surrounding function returns", IsCorrect: true},
				{Text: "The call runs at program exit"},
				{Text: "The call never panics"},
			},
		},
		{
			Text: "Which type is safe for concurrent use without extra locking?",
			Choices: []model.ChoiceInput{
				{Text: "map[string]int"},
				{Text: "sync.Map", IsCorrect: true},
				{Text: "[]int"},
				{Text: "bytes.Buffer"},
			},
		},
		{
			Text: "What does `len` return for a nil slice?",
			Choices: []model.ChoiceInput{
				{Text: "It panics"},
				{Text: "-1"},
				{Text: "0", IsCorrect: true},
				{Text: "Undefined behavior"},
			},
		},
	}
}
