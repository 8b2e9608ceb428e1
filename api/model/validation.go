package model

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// 标签为逗号分隔的词列表，允许字母、数字、中文、下划线、连字符和空格
var tagListPattern = regexp.MustCompile(`^[\p{L}\p{N}_\- ]+(,[\p{L}\p{N}_\- ]+)*$`)

// RegisterValidations 向gin的校验引擎注册自定义校验规则
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("taglist", validateTagList)
	}
}

// validateTagList 校验标签格式
func validateTagList(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return tagListPattern.MatchString(value)
}
