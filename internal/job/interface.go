package job

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/dto"
	"github.com/joshu-sajeev/queuectl/internal/models"
)

// JobRepoInterface defines the store operations the service depends on.
type JobRepoInterface interface {
	Save(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, id string) (*models.Job, error)
	ListByState(ctx context.Context, state config.JobState) ([]models.Job, error)
	CountByState(ctx context.Context) (map[config.JobState]int64, error)
	ListDLQ(ctx context.Context) ([]models.DeadLetter, error)
	CountDLQ(ctx context.Context) (int64, error)
	RestoreFromDLQ(ctx context.Context, id string, defaultMaxRetries int) (*models.Job, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// JobServiceInterface defines the queue operations shared by the CLI and
// the HTTP API. Errors are common.APIError values.
type JobServiceInterface interface {
	Enqueue(ctx context.Context, req *dto.EnqueueDTO) (*dto.JobResponseDTO, error)
	GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error)
	ListByState(ctx context.Context, state string) ([]dto.JobResponseDTO, error)
	Status(ctx context.Context) (*dto.StatusDTO, error)
	ListDLQ(ctx context.Context) ([]dto.DeadLetterDTO, error)
	RetryDLQ(ctx context.Context, id string) (*dto.JobResponseDTO, error)
	SetConfig(ctx context.Context, key, value string) error
	ShowConfig(ctx context.Context) map[string]string
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Enqueue(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Status(c *gin.Context)
	ListDLQ(c *gin.Context)
	RetryDLQ(c *gin.Context)
	ShowConfig(c *gin.Context)
	SetConfig(c *gin.Context)
}
