package xenv

import (
	"os"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvLoad 按`env`标签从环境变量填充conf, 未设置的变量保留conf原值
func EnvLoad(conf interface{}, prefix string) error {
	return env.ParseWithOptions(conf, env.Options{Prefix: prefix})
}

// DotEnvLoad 加载.env文件到环境变量, 文件不存在时忽略; 已存在的环境变量不会被覆盖
func DotEnvLoad(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "stat %s", p)
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}
