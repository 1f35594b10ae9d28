package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	https_server "EduLink/api/http"
	"EduLink/internal/config"
	"EduLink/pkg/zlog"
)

func main() {
	// 1. 加载配置与日志
	conf := config.GetConfig()
	zlog.InitLogger(conf.LogConfig.LogPath)
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	// 2. 启动后台资料处理 worker
	if err := https_server.Worker.Start(); err != nil {
		zlog.Fatal("worker 启动失败: " + err.Error())
	}

	// 3. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		// 目前使用 HTTP 启动。如果需要 HTTPS，请配置证书并使用 GE.RunTLS
		if err := https_server.GE.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
			return
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	https_server.Worker.Stop()
	if err := https_server.StatusPub.Close(); err != nil {
		zlog.Warn("状态事件发布器关闭失败: " + err.Error())
	}
	https_server.AppCache.Close()

	zlog.Info("服务器已关闭")
	zlog.Sync()
}
