// Package logger expone un logger zap global con scoping por contexto.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, File: cfg.Log.File})
//	defer logger.Sync()
//
// En services:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.login"))
//	log.Info("login ok", logger.UserID(id), logger.DeviceID(did))
//
// Contraseñas, tokens y secretos nunca se loguean.
package logger
