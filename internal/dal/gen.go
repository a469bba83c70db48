package dal

import (
	"gorm.io/gen"
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

// GenExecute 为全部模型生成 gorm-gen 查询代码
// 命令使用: go run ./cmd/gen -config cfg.toml
func GenExecute(outPath string, conn *gorm.DB) {
	g := gen.NewGenerator(gen.Config{
		OutPath: outPath,
		Mode:    gen.WithoutContext | gen.WithDefaultQuery | gen.WithQueryInterface,
	})

	g.UseDB(conn)
	g.ApplyBasic(models.All()...)
	g.Execute()
}
