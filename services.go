package main

import (
	"context"
	"fmt"

	"github.com/nanostudio/nanostudio-services-uploads/handlers"
	"github.com/nanostudio/nanostudio-services-uploads/internal/caching"
	"github.com/nanostudio/nanostudio-services-uploads/queues"
	"github.com/nanostudio/nanostudio-services-uploads/services"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

type Stores struct {
	files    store.FileStore
	sessions store.SessionStore
	chunks   store.ChunkStore
}

type Services struct {
	Uploads    services.UploadService
	Analysis   services.AnalysisService
	Files      services.FileService
	Completion services.UploadCompletionService
	Receiver   queues.UploadsNotifyReceiver

	BlobStorage store.BlobStorage
	Stores      *Stores

	HTTPHandler *handlers.HTTPHandler
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) *Services {
	uploadCfg := app.Config.UploadConfig
	svcCfg := app.Config.ServiceConfig

	blobStorage := store.NewS3BlobStorageImpl(app.S3, svcCfg.UploadsBucket, app.Logger)
	fileStore := store.NewDynamoDbFileStoreImpl(app.DynamoDB, svcCfg.FilesTableName)
	sessionStore := store.NewMemorySessionStoreImpl(uploadCfg.MaxSessions)
	chunkStore := store.NewMemoryChunkStoreImpl(uploadCfg.MaxChunkUploads, uploadCfg.ChunkTTL)

	var cachingSvc caching.CachingService
	cachingSvc = caching.NewNullCachingService()
	if app.Redis != nil {
		cachingSvc = caching.NewRedisCachingService(app.Redis)
	}

	analyzer := store.NewHTTPAnalyzerImpl(svcCfg.AnalysisURL, svcCfg.AnalysisAPIKey, app.Logger)

	uploadSvc := services.NewUploadServiceImpl(sessionStore, blobStorage, uploadCfg.SignedURLTTL, app.Logger)
	analysisSvc := services.NewAnalysisServiceImpl(chunkStore, analyzer, app.Logger)
	fileSvc := services.NewFileServiceImpl(fileStore, cachingSvc, app.Logger)
	completionSvc := services.NewUploadCompletionServiceImpl(sessionStore, fileStore, blobStorage, cachingSvc, app.Logger)

	queueUrl := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s",
		app.Config.AWSConfig.Region, app.Config.AWSConfig.AccountID, svcCfg.UploadsNotificationsQueueName)
	receiver := queues.NewUploadsNotifyReceiverImpl(context.Background(), app.Sqs, completionSvc, queueUrl, app.Logger)

	handler := handlers.NewHTTPHandler(uploadSvc, analysisSvc, fileSvc, app.Logger)

	return &Services{
		Uploads:    uploadSvc,
		Analysis:   analysisSvc,
		Files:      fileSvc,
		Completion: completionSvc,
		Receiver:   receiver,

		BlobStorage: blobStorage,
		Stores: &Stores{
			files:    fileStore,
			sessions: sessionStore,
			chunks:   chunkStore,
		},

		HTTPHandler: handler,
	}
}

func (s *Services) Shutdown(ctx context.Context) error {
	if s.Receiver != nil {
		if err := s.Receiver.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.Stores != nil {
		shutdownIfPossible := func(v any) {
			if sh, ok := v.(Shutdowner); ok {
				_ = sh.Shutdown(ctx)
			}
		}
		shutdownIfPossible(s.Stores.files)
		shutdownIfPossible(s.Stores.sessions)
		shutdownIfPossible(s.Stores.chunks)
	}

	return nil
}
